// Package tags normalizes scraped genre and tag strings onto a canonical
// web novel vocabulary. Tags are flat; identity is the slug.
package tags

import "github.com/folioapp/folio-server/internal/util"

// CanonicalAliases maps common variations to canonical slugs. Source sites
// disagree on naming, so scraped tags pass through this table before they
// are stored.
var CanonicalAliases = map[string][]string{
	// Science fiction variations
	"sci-fi":          {"science-fiction"},
	"scifi":           {"science-fiction"},
	"sf":              {"science-fiction"},
	"science-fiction": {"science-fiction"},

	// Fantasy variations
	"high-fantasy":      {"epic-fantasy"},
	"sword-and-sorcery": {"sword-and-sorcery"},

	// Combined genres split into multiple tags
	"sci-fi-fantasy":          {"science-fiction", "fantasy"},
	"science-fiction-fantasy": {"science-fiction", "fantasy"},
	"fantasy-romance":         {"fantasy", "romance"},
	"romantic-fantasy":        {"romantasy"},

	// LitRPG variations
	"litrpg":   {"litrpg"},
	"lit-rpg":  {"litrpg"},
	"gamelit":  {"litrpg"},
	"game-lit": {"litrpg"},
	"vrmmo":    {"litrpg", "virtual-reality"},

	// Progression and cultivation
	"progression":         {"progression-fantasy"},
	"progression-fantasy": {"progression-fantasy"},
	"cultivation":         {"xianxia"},
	"xianxia":             {"xianxia"},
	"wuxia":               {"wuxia"},
	"xuanhuan":            {"xianxia"},

	// Isekai and reincarnation
	"isekai":         {"isekai"},
	"portal-fantasy": {"isekai"},
	"reincarnation":  {"reincarnation"},
	"transmigration": {"reincarnation"},
	"summoned-hero":  {"isekai"},
	"another-world":  {"isekai"},

	// Time loops
	"time-loop":     {"time-loop"},
	"timeloop":      {"time-loop"},
	"groundhog-day": {"time-loop"},

	// Young adult variations
	"ya":          {"young-adult"},
	"young-adult": {"young-adult"},
	"teen":        {"young-adult"},

	// Mystery and thriller
	"thriller":         {"thriller"},
	"suspense":         {"thriller"},
	"mystery-thriller": {"mystery", "thriller"},

	// Slice of life
	"slice-of-life": {"slice-of-life"},
	"sol":           {"slice-of-life"},
	"cozy":          {"slice-of-life"},

	// Romance variations
	"contemporary-romance": {"contemporary-romance"},
	"modern-romance":       {"contemporary-romance"},
	"paranormal-romance":   {"paranormal-romance"},
	"pnr":                  {"paranormal-romance"},
	"slow-burn":            {"slow-burn"},

	// Horror
	"horror":        {"horror"},
	"scary":         {"horror"},
	"cosmic-horror": {"cosmic-horror"},
	"lovecraftian":  {"cosmic-horror"},

	// Dungeon fiction
	"dungeon":       {"dungeon-core"},
	"dungeon-core":  {"dungeon-core"},
	"dungeon-crawl": {"dungeon-crawler"},

	// Tone
	"grimdark":  {"grimdark"},
	"dark":      {"grimdark"},
	"comedy":    {"comedy"},
	"humor":     {"comedy"},
	"humour":    {"comedy"},
	"satire":    {"comedy"},
	"wholesome": {"wholesome"},

	// Protagonist flavors
	"anti-hero-lead":  {"anti-hero"},
	"anti-hero":       {"anti-hero"},
	"villainous-lead": {"anti-hero"},
	"female-lead":     {"female-lead"},
	"male-lead":       {"male-lead"},
	"non-human-lead":  {"non-human-lead"},
	"monster-mc":      {"non-human-lead"},
	"overpowered":     {"overpowered"},
	"op-mc":           {"overpowered"},
	"weak-to-strong":  {"progression-fantasy"},

	// Setting
	"post-apocalyptic":   {"post-apocalyptic"},
	"apocalypse":         {"post-apocalyptic"},
	"space-opera":        {"space-opera"},
	"cyberpunk":          {"cyberpunk"},
	"steampunk":          {"steampunk"},
	"urban-fantasy":      {"urban-fantasy"},
	"historical":         {"historical-fiction"},
	"historical-fiction": {"historical-fiction"},
	"school-life":        {"school-life"},
	"academy":            {"school-life"},
	"kingdom-building":   {"kingdom-building"},
	"base-building":      {"kingdom-building"},

	// Structure
	"web-serial":       {"web-serial"},
	"serial":           {"web-serial"},
	"anthology":        {"anthology"},
	"short-story":      {"short-story"},
	"fanfiction":       {"fanfiction"},
	"fan-fiction":      {"fanfiction"},
	"original-fiction": {"original-fiction"},
}

// DisplayNames maps canonical slugs to reader-facing names. Slugs missing
// from this table are shown as-is.
var DisplayNames = map[string]string{
	"science-fiction":      "Science Fiction",
	"fantasy":              "Fantasy",
	"epic-fantasy":         "Epic Fantasy",
	"urban-fantasy":        "Urban Fantasy",
	"sword-and-sorcery":    "Sword & Sorcery",
	"romantasy":            "Romantasy",
	"litrpg":               "LitRPG",
	"virtual-reality":      "Virtual Reality",
	"progression-fantasy":  "Progression Fantasy",
	"xianxia":              "Xianxia",
	"wuxia":                "Wuxia",
	"isekai":               "Isekai",
	"reincarnation":        "Reincarnation",
	"time-loop":            "Time Loop",
	"young-adult":          "Young Adult",
	"mystery":              "Mystery",
	"thriller":             "Thriller",
	"slice-of-life":        "Slice of Life",
	"romance":              "Romance",
	"contemporary-romance": "Contemporary Romance",
	"paranormal-romance":   "Paranormal Romance",
	"slow-burn":            "Slow Burn",
	"horror":               "Horror",
	"cosmic-horror":        "Cosmic Horror",
	"dungeon-core":         "Dungeon Core",
	"dungeon-crawler":      "Dungeon Crawler",
	"grimdark":             "Grimdark",
	"comedy":               "Comedy",
	"wholesome":            "Wholesome",
	"anti-hero":            "Anti-Hero",
	"female-lead":          "Female Lead",
	"male-lead":            "Male Lead",
	"non-human-lead":       "Non-Human Lead",
	"overpowered":          "Overpowered",
	"post-apocalyptic":     "Post-Apocalyptic",
	"space-opera":          "Space Opera",
	"cyberpunk":            "Cyberpunk",
	"steampunk":            "Steampunk",
	"historical-fiction":   "Historical Fiction",
	"school-life":          "School Life",
	"kingdom-building":     "Kingdom Building",
	"web-serial":           "Web Serial",
	"anthology":            "Anthology",
	"short-story":          "Short Story",
	"fanfiction":           "Fanfiction",
	"original-fiction":     "Original Fiction",
	"action":               "Action",
	"adventure":            "Adventure",
	"drama":                "Drama",
	"tragedy":              "Tragedy",
	"supernatural":         "Supernatural",
	"magic":                "Magic",
	"martial-arts":         "Martial Arts",
	"strategy":             "Strategy",
	"war-and-military":     "War & Military",
}

// NormalizeToSlugs converts a raw scraped tag to canonical slug(s).
// Unrecognized tags fall back to their own slug so new vocabulary is
// never dropped.
func NormalizeToSlugs(raw string) []string {
	slug := util.Slugify(raw)
	if slug == "" {
		return nil
	}

	if canonical, ok := CanonicalAliases[slug]; ok {
		return canonical
	}

	return []string{slug}
}

// NormalizeAll maps a scraped tag list onto canonical slugs, dropping
// empties and duplicates while preserving first-seen order.
func NormalizeAll(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		for _, slug := range NormalizeToSlugs(r) {
			if slug == "" || seen[slug] {
				continue
			}
			seen[slug] = true
			out = append(out, slug)
		}
	}
	return out
}

// DisplayName returns the reader-facing name for a canonical slug.
func DisplayName(slug string) string {
	if name, ok := DisplayNames[slug]; ok {
		return name
	}
	return slug
}
