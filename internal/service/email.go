package service

import (
	"fmt"
	"html"
	"strings"
)

// buildChallengeEmail renders the daily challenge email bodies.
func buildChallengeEmail(baseURL, title, description, difficulty, problemID string) (subject, bodyHTML, bodyText string) {
	subject = "Daily challenge: " + title
	link := problemURL(baseURL, problemID)

	var b strings.Builder
	b.WriteString("<h2>" + html.EscapeString(title) + "</h2>\n")
	if difficulty != "" {
		b.WriteString("<p><em>Difficulty: " + html.EscapeString(difficulty) + "</em></p>\n")
	}
	b.WriteString("<p>" + html.EscapeString(description) + "</p>\n")
	b.WriteString(fmt.Sprintf("<p><a href=%q>Solve it</a></p>\n", link))
	bodyHTML = b.String()

	bodyText = fmt.Sprintf("%s\n\n%s\n\nSolve it: %s\n", title, description, link)
	return subject, bodyHTML, bodyText
}

// buildSolutionEmail renders the follow-up solution email bodies.
func buildSolutionEmail(baseURL, title, solution, problemID string) (subject, bodyHTML, bodyText string) {
	subject = "Solution: " + title
	link := problemURL(baseURL, problemID) + "/solution"

	var b strings.Builder
	b.WriteString("<h2>Solution: " + html.EscapeString(title) + "</h2>\n")
	b.WriteString("<pre>" + html.EscapeString(solution) + "</pre>\n")
	b.WriteString(fmt.Sprintf("<p><a href=%q>View online</a></p>\n", link))
	bodyHTML = b.String()

	bodyText = fmt.Sprintf("Solution: %s\n\n%s\n\nView online: %s\n", title, solution, link)
	return subject, bodyHTML, bodyText
}

// problemURL builds the public link for a problem.
func problemURL(baseURL, problemID string) string {
	return strings.TrimRight(baseURL, "/") + "/p/" + problemID
}

// problemIDFromURL extracts a problem id from a clicked link, or "" if the
// URL does not point at a problem page.
func problemIDFromURL(url string) string {
	idx := strings.Index(url, "/p/")
	if idx < 0 {
		return ""
	}
	rest := url[idx+len("/p/"):]
	if cut := strings.IndexAny(rest, "/?#"); cut >= 0 {
		rest = rest[:cut]
	}
	return rest
}

// isSolveLink reports whether a clicked URL counts as challenge engagement.
func isSolveLink(url string) bool {
	return strings.Contains(url, "/p/")
}
