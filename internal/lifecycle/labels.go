package lifecycle

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

var supported = []language.Tag{language.English, language.Arabic, language.Indonesian}

var (
	matcher = language.NewMatcher(supported)
	labels  = catalog.NewBuilder(catalog.Fallback(language.English))
)

func init() {
	entries := map[language.Tag]map[State]string{
		language.English: {
			StateDraft:     "Draft",
			StateApproved:  "Approved",
			StatePosted:    "Posted",
			StatePaid:      "Paid",
			StateCancelled: "Cancelled",
		},
		language.Arabic: {
			StateDraft:     "مسودة",
			StateApproved:  "معتمد",
			StatePosted:    "مرحل",
			StatePaid:      "مدفوع",
			StateCancelled: "ملغي",
		},
		language.Indonesian: {
			StateDraft:     "Draf",
			StateApproved:  "Disetujui",
			StatePosted:    "Diposting",
			StatePaid:      "Dibayar",
			StateCancelled: "Dibatalkan",
		},
	}
	for tag, msgs := range entries {
		for state, msg := range msgs {
			if err := labels.SetString(tag, string(state), msg); err != nil {
				panic(err)
			}
		}
	}
}

// MatchLanguage picks the closest supported tag for an Accept-Language value.
func MatchLanguage(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return language.English
	}
	_, idx, _ := matcher.Match(tags...)
	return supported[idx]
}

// Label returns the display name of a state for a supported language tag.
func Label(s State, tag language.Tag) string {
	_, idx, _ := matcher.Match(tag)
	p := message.NewPrinter(supported[idx], message.Catalog(labels))
	return p.Sprintf(string(s))
}
