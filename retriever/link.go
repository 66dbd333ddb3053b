package retriever

import "fmt"

// BuildDocumentLink returns the public link of a document on the site bound
// to alias, or "" when the alias has no site.
func BuildDocumentLink(aliasToSite map[string]string, alias, moduleID, documentID string) string {
	site, ok := aliasToSite[alias]
	if !ok || site == "" {
		return ""
	}
	return fmt.Sprintf("%s?#/document/%s/%s/", site, moduleID, documentID)
}
