package render

import "time"

// Labels holds the localized strings used in a rendered transcript.
type Labels struct {
	Title      string
	User       string
	Assistant  string
	Partial    string
	Session    string
	TimeLayout string
}

var localeLabels = map[string]Labels{
	"hu": {
		Title:      "Beszélgetés",
		User:       "Felhasználó",
		Assistant:  "Asszisztens",
		Partial:    "megszakadt válasz",
		Session:    "Munkamenet",
		TimeLayout: "2006. 01. 02. 15:04:05 MST",
	},
	"en": {
		Title:      "Conversation",
		User:       "User",
		Assistant:  "Assistant",
		Partial:    "interrupted reply",
		Session:    "Session",
		TimeLayout: "2006-01-02 15:04:05 MST",
	},
}

// LabelsFor returns the labels for locale, defaulting to Hungarian.
func LabelsFor(locale string) Labels {
	if l, ok := localeLabels[locale]; ok {
		return l
	}
	return localeLabels["hu"]
}

func (l Labels) formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(l.TimeLayout)
}
