package matching

import "strings"

// commonDomains are consumer mail providers; sharing one says nothing about employer.
var commonDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
	"yahoo.com":      true,
	"hotmail.com":    true,
	"outlook.com":    true,
	"live.com":       true,
	"aol.com":        true,
	"icloud.com":     true,
	"me.com":         true,
	"protonmail.com": true,
	"proton.me":      true,
}

var genericDomainWords = []string{
	"consulting", "services", "solutions", "group", "corp", "inc", "llc", "ltd", "partners",
}

// IsCommonDomain reports whether domain belongs to a consumer mail provider.
func IsCommonDomain(domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if commonDomains[domain] {
		return true
	}
	// regional variants such as yahoo.co.uk
	label, _, _ := strings.Cut(domain, ".")
	switch label {
	case "gmail", "yahoo", "hotmail", "outlook", "aol", "icloud", "protonmail":
		return true
	}
	return false
}

// IsGenericDomain reports whether domain is built from words many unrelated companies use.
func IsGenericDomain(domain string) bool {
	domain = strings.ToLower(domain)
	for _, word := range genericDomainWords {
		if strings.Contains(domain, word) {
			return true
		}
	}
	return false
}
