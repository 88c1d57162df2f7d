// Decides whether a domain is covered by a certificate's CN/SAN set,
// with standard single-level wildcard semantics:
//
//	*.example.com covers foo.example.com,
//	but not example.com itself and not a.b.example.com.
package domainmatch

import (
	"net"
	"strings"
)

func Matches(domain string, subjectCN string, altNames []string) bool {
	if domain == "" {
		return false
	}

	if equalsName(domain, subjectCN) {
		return true
	}

	for _, name := range altNames {
		if equalsName(domain, name) {
			return true
		}
	}

	wildcard := wildcardVersionOfHostname(domain)
	if wildcard == "" {
		return false
	}

	if equalsName(wildcard, subjectCN) {
		return true
	}

	for _, name := range altNames {
		if equalsName(wildcard, name) {
			return true
		}
	}

	return false
}

// localhost and bare IP literals don't go through certificate name checks in
// development contexts - the caller uses this to skip enforcement entirely.
func IsDevelopmentHost(domain string) bool {
	if domain == "localhost" || strings.HasSuffix(domain, ".localhost") {
		return true
	}

	return net.ParseIP(domain) != nil
}

func equalsName(domain string, name string) bool {
	return name != "" && strings.EqualFold(domain, name)
}

// "foobar.example.com" => "*.example.com"
//
// exactly one label gets swallowed by the wildcard, so the result never covers
// the apex or sub-sub domains. single-label hostnames have no wildcard version.
func wildcardVersionOfHostname(hostname string) string {
	labels := strings.Split(hostname, ".")
	if len(labels) < 2 {
		return ""
	}

	return "*." + strings.Join(labels[1:], ".")
}
