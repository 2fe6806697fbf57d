package domain

import "strings"

// vendorAliases maps lowercase tokens seen in free text onto canonical
// vendor names. Multi-word aliases are matched before single words.
var vendorAliases = []struct {
	alias  string
	vendor string
}{
	{"palo alto", "Palo Alto Networks"},
	{"trend micro", "Trend Micro"},
	{"check point", "Check Point"},
	{"d-link", "D-Link"},
	{"microsoft", "Microsoft"},
	{"windows", "Microsoft"},
	{"exchange", "Microsoft"},
	{"apple", "Apple"},
	{"ios", "Apple"},
	{"google", "Google"},
	{"chrome", "Google"},
	{"android", "Android"},
	{"cisco", "Cisco"},
	{"fortinet", "Fortinet"},
	{"fortios", "Fortinet"},
	{"ivanti", "Ivanti"},
	{"vmware", "VMware"},
	{"oracle", "Oracle"},
	{"adobe", "Adobe"},
	{"apache", "Apache"},
	{"citrix", "Citrix"},
	{"linux", "Linux"},
	{"mozilla", "Mozilla"},
	{"firefox", "Mozilla"},
	{"samsung", "Samsung"},
	{"juniper", "Juniper"},
	{"sonicwall", "SonicWall"},
	{"atlassian", "Atlassian"},
	{"confluence", "Atlassian"},
	{"sap", "SAP"},
	{"f5", "F5"},
	{"zyxel", "Zyxel"},
	{"qnap", "QNAP"},
	{"progress", "Progress"},
	{"moveit", "Progress"},
	{"jenkins", "Jenkins"},
	{"wordpress", "WordPress"},
}

// DetectVendor returns the first known vendor named in text. Matching is on
// whole words so "sap" does not fire inside "disappear".
func DetectVendor(text string) (string, bool) {
	padded := " " + NormalizeWords(text) + " "
	for _, a := range vendorAliases {
		if strings.Contains(padded, " "+a.alias+" ") {
			return a.vendor, true
		}
	}
	return "", false
}

// IsVendorAlias reports whether a single lowercase token is a vendor alias.
func IsVendorAlias(token string) bool {
	for _, a := range vendorAliases {
		if a.alias == token {
			return true
		}
	}
	return false
}

// NormalizeWords case-folds text and replaces punctuation other than '-'
// with spaces so phrases can be matched on whole words.
func NormalizeWords(text string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			return r
		case r > 127:
			return r
		default:
			return ' '
		}
	}, Fold(text))
}
