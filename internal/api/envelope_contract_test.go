package api

import (
	"encoding/json/v2"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// getFixturePath returns the path to the shared envelope fixtures.
// E-reader plugin tests embed the same JSON strings, so both sides of
// the wire are pinned to one set of files.
func getFixturePath(t *testing.T) string {
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "Failed to get caller info")

	// internal/api -> repo root -> testdata/envelope
	serverDir := filepath.Dir(filepath.Dir(filepath.Dir(filename)))
	return filepath.Join(serverDir, "testdata", "envelope")
}

// TestEnvelopeContract_SuccessMatchesFixture pins the success envelope
// to the shared fixture byte layout.
func TestEnvelopeContract_SuccessMatchesFixture(t *testing.T) {
	fixturePath := filepath.Join(getFixturePath(t), "success.json")
	fixtureBytes, err := os.ReadFile(fixturePath)
	require.NoError(t, err, "Failed to read fixture file - contract tests require shared fixtures")

	var expected map[string]any
	err = json.Unmarshal(fixtureBytes, &expected)
	require.NoError(t, err)

	data := map[string]string{"id": "ann_0b44", "selected_text": "the annotated passage"}
	result, err := EnvelopeTransformer(nil, "200", data)
	require.NoError(t, err)

	serverBytes, err := json.Marshal(result)
	require.NoError(t, err)

	var serverOutput map[string]any
	err = json.Unmarshal(serverBytes, &serverOutput)
	require.NoError(t, err)

	assert.Equal(t, expected["v"], serverOutput["v"], "Version field 'v' must match fixture")
	assert.Equal(t, expected["success"], serverOutput["success"], "Success field must match fixture")
	assert.Contains(t, serverOutput, "data", "Response must contain 'data' field")

	// Verify no unexpected fields
	for key := range serverOutput {
		assert.Contains(t, expected, key, "Server output contains unexpected field: %s", key)
	}
}

// TestEnvelopeContract_SuccessNullDataMatchesFixture verifies success responses
// without data match the fixture structure.
func TestEnvelopeContract_SuccessNullDataMatchesFixture(t *testing.T) {
	fixturePath := filepath.Join(getFixturePath(t), "success_null_data.json")
	fixtureBytes, err := os.ReadFile(fixturePath)
	require.NoError(t, err, "Failed to read fixture file")

	var expected map[string]any
	err = json.Unmarshal(fixtureBytes, &expected)
	require.NoError(t, err)

	// Generate envelope with nil data
	result, err := EnvelopeTransformer(nil, "204", nil)
	require.NoError(t, err)

	serverBytes, err := json.Marshal(result)
	require.NoError(t, err)

	var serverOutput map[string]any
	err = json.Unmarshal(serverBytes, &serverOutput)
	require.NoError(t, err)

	// Verify required fields
	assert.Equal(t, expected["v"], serverOutput["v"], "Version field must match")
	assert.Equal(t, expected["success"], serverOutput["success"], "Success field must match")
}

// TestEnvelopeContract_SimpleErrorMatchesFixture verifies simple error responses
// match the fixture structure.
func TestEnvelopeContract_SimpleErrorMatchesFixture(t *testing.T) {
	fixturePath := filepath.Join(getFixturePath(t), "error_simple.json")
	fixtureBytes, err := os.ReadFile(fixturePath)
	require.NoError(t, err, "Failed to read fixture file")

	var expected map[string]any
	err = json.Unmarshal(fixtureBytes, &expected)
	require.NoError(t, err)

	result, err := EnvelopeTransformer(nil, "404", &APIError{Message: "novel not found"})
	require.NoError(t, err)

	serverBytes, err := json.Marshal(result)
	require.NoError(t, err)

	var serverOutput map[string]any
	err = json.Unmarshal(serverBytes, &serverOutput)
	require.NoError(t, err)

	// Verify structure matches fixture
	assert.Equal(t, expected["v"], serverOutput["v"], "Version field must match")
	assert.Equal(t, expected["success"], serverOutput["success"], "Success must be false")
	assert.Contains(t, serverOutput, "error", "Must contain 'error' field")
	assert.IsType(t, "", serverOutput["error"], "Error must be a string")
}

// TestEnvelopeContract_DetailedErrorMatchesFixture verifies detailed error responses
// with code/message/details match the fixture structure.
func TestEnvelopeContract_DetailedErrorMatchesFixture(t *testing.T) {
	fixturePath := filepath.Join(getFixturePath(t), "error_detailed.json")
	fixtureBytes, err := os.ReadFile(fixturePath)
	require.NoError(t, err, "Failed to read fixture file")

	var expected map[string]any
	err = json.Unmarshal(fixtureBytes, &expected)
	require.NoError(t, err)

	result, err := EnvelopeTransformer(nil, "409", &APIError{
		Code:    "ALREADY_EXISTS",
		Message: "email already in use",
		Details: map[string]string{"existing_id": "usr_9f21"},
	})
	require.NoError(t, err)

	serverBytes, err := json.Marshal(result)
	require.NoError(t, err)

	var serverOutput map[string]any
	err = json.Unmarshal(serverBytes, &serverOutput)
	require.NoError(t, err)

	// Verify structure matches fixture
	assert.Equal(t, expected["v"], serverOutput["v"], "Version field must match")
	assert.Contains(t, serverOutput, "code", "Must contain 'code' field")
	assert.Contains(t, serverOutput, "message", "Must contain 'message' field")
	assert.Contains(t, serverOutput, "details", "Must contain 'details' field")

	// Verify types
	assert.IsType(t, "", serverOutput["code"], "Code must be a string")
	assert.IsType(t, "", serverOutput["message"], "Message must be a string")
}

// TestEnvelopeContract_VersionFieldName verifies the version field is
// named exactly 'v'. Deployed e-reader clients parse it positionally
// before anything else; renaming it would break them silently.
func TestEnvelopeContract_VersionFieldName(t *testing.T) {
	result, err := EnvelopeTransformer(nil, "200", nil)
	require.NoError(t, err)

	serverBytes, err := json.Marshal(result)
	require.NoError(t, err)

	var serverOutput map[string]any
	err = json.Unmarshal(serverBytes, &serverOutput)
	require.NoError(t, err)

	assert.Contains(t, serverOutput, "v", "Must use 'v' as version field name")
	assert.NotContains(t, serverOutput, "version", "Must NOT use 'version' as field name")
	assert.NotContains(t, serverOutput, "Version", "Must NOT use 'Version' as field name")
}
