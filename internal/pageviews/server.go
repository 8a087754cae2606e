package pageviews

import "strings"

// webserverByWiki is the portable lookup named in spec §8. It is
// deliberately a fixed table rather than a formula: some sister projects
// (wikidata, species) use a webserver host that diverges from the plain
// "{language}.{project}.org" pattern the rest of the system assumes.
var webserverByWiki = map[string]string{
	"commonswiki":  "commons.wikimedia.org",
	"wikidatawiki": "www.wikidata.org",
	"specieswiki":  "species.wikimedia.org",
}

// GetWebserverForWiki returns the webserver host for a wiki identifier
// (e.g. "enwiki" -> "en.wikipedia.org"). Returns false for an unrecognized
// identifier.
func GetWebserverForWiki(wikiID string) (string, bool) {
	if host, ok := webserverByWiki[wikiID]; ok {
		return host, true
	}

	for _, suffix := range projectSuffixOrder {
		if lang, ok := cutSuffix(wikiID, suffix.id); ok && lang != "" {
			return lang + "." + suffix.host, true
		}
	}
	return "", false
}

// projectSuffixOrder maps a wiki-id suffix to its webserver project
// segment, with the bare "wiki" suffix last so e.g. "wikisource" is
// tried before "wiki" is.
var projectSuffixOrder = []struct{ id, host string }{
	{"wikisource", "wikisource.org"},
	{"wiktionary", "wiktionary.org"},
	{"wikibooks", "wikibooks.org"},
	{"wikiquote", "wikiquote.org"},
	{"wikiversity", "wikiversity.org"},
	{"wikivoyage", "wikivoyage.org"},
	{"wikinews", "wikinews.org"},
	{"wiki", "wikipedia.org"},
}

func cutSuffix(s, suffix string) (string, bool) {
	if !strings.HasSuffix(s, suffix) {
		return "", false
	}
	return s[:len(s)-len(suffix)], true
}

// FixServerForPV rewrites the two servers whose webserver host diverges
// from the host the pageviews REST API actually expects (spec §4.3):
//
//	wikidata.wikipedia.org -> wikidata.org
//	species.wikipedia.org  -> species.wikimedia.org
//
// All other servers are returned unchanged.
func FixServerForPV(server string) string {
	switch server {
	case "wikidata.wikipedia.org":
		return "wikidata.org"
	case "species.wikipedia.org":
		return "species.wikimedia.org"
	default:
		return server
	}
}
