package rtd

import (
	"encoding/json"
)

// Named is an API object carrying a display name, such as a language.
type Named struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Repository is the source repository of a project.
type Repository struct {
	URL  string `json:"url"`
	Type string `json:"type"`
}

// Project is a Read the Docs project as returned by /projects/<slug>/.
type Project struct {
	Name                string      `json:"name"`
	Slug                string      `json:"slug"`
	Description         string      `json:"description"`
	Homepage            string      `json:"homepage"`
	Language            *Named      `json:"language"`
	ProgrammingLanguage *Named      `json:"programming_language"`
	Repository          *Repository `json:"repository"`
}

// ProjectList is a page of /projects/ results.
type ProjectList struct {
	Count    int       `json:"count"`
	Next     *string   `json:"next"`
	Previous *string   `json:"previous"`
	Results  []Project `json:"results"`
}

// Version is a built version of a project.
type Version struct {
	Slug       string `json:"slug"`
	Identifier string `json:"identifier"`
	Active     bool   `json:"active"`
}

// VersionList is the body of /projects/<slug>/versions/.
type VersionList struct {
	Count   int       `json:"count"`
	Results []Version `json:"results"`
}

// SlugRef is a reference to a project or version. The search API sends an
// object with a slug; a bare string is accepted too.
type SlugRef struct {
	Slug string
}

// UnmarshalJSON accepts {"slug": "..."}, "..." or null.
func (r *SlugRef) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &r.Slug)
	}

	var obj struct {
		Slug string `json:"slug"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	r.Slug = obj.Slug
	return nil
}

// Block is a matched fragment of a search hit.
type Block struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// SearchHit is one page returned by /search/.
type SearchHit struct {
	Title   string   `json:"title"`
	Domain  string   `json:"domain"`
	Path    string   `json:"path"`
	Project *SlugRef `json:"project"`
	Version *SlugRef `json:"version"`
	Blocks  []Block  `json:"blocks"`
}

// SearchResponse is a page of /search/ results.
type SearchResponse struct {
	Count    int         `json:"count"`
	Next     *string     `json:"next"`
	Previous *string     `json:"previous"`
	Results  []SearchHit `json:"results"`
}
