package providers

import "time"

// shutdownTimeout bounds how long a shutdown hook may take. Long enough
// for in-flight sync batches to commit, short enough that a restart
// never hangs on a stuck connection.
const shutdownTimeout = 30 * time.Second
