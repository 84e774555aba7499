// Package categorize assigns every endpoint to exactly one category using a
// deterministic cascade: the first declared tag, then a path segment, then the
// reserved Uncategorized bucket. It also produces the per-API category roll-up
// persisted alongside the endpoints.
package categorize

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/salacoste/openapi-mcp-swagger-sub001/pkg/types"
)

// Assignment is the category resolution for a single endpoint.
type Assignment struct {
	Name        string
	Group       string
	DisplayName string
	Description string
}

// Categorizer resolves categories against the tag and tag-group tables of one
// specification. Same input always yields the same assignment.
type Categorizer struct {
	tags      map[string]types.TagDefinition
	tagGroups map[string]string
}

// New builds a Categorizer from the declared tag and tag-group tables.
func New(tags []types.TagDefinition, groups []types.TagGroupDefinition) *Categorizer {
	c := &Categorizer{
		tags:      make(map[string]types.TagDefinition, len(tags)),
		tagGroups: make(map[string]string),
	}
	for _, tag := range tags {
		c.tags[tag.Name] = tag
	}
	for _, group := range groups {
		for _, member := range group.Tags {
			// first group wins when a tag is listed in several
			if _, ok := c.tagGroups[member]; !ok {
				c.tagGroups[member] = group.Name
			}
		}
	}
	return c
}

// Categorize resolves the assignment for one endpoint without mutating it.
func (c *Categorizer) Categorize(ep *types.Endpoint) Assignment {
	if len(ep.Tags) > 0 {
		name := ep.Tags[0]
		out := Assignment{Name: name}
		if tag, ok := c.tags[name]; ok {
			out.DisplayName = tag.DisplayName
			out.Description = tag.Description
		}
		out.Group = c.tagGroups[name]
		return out
	}
	if seg := CategoryFromPath(ep.Path); seg != "" {
		return Assignment{Name: seg}
	}
	return Assignment{Name: types.UncategorizedName}
}

// Apply resolves and writes the assignment onto the endpoint.
func (c *Categorizer) Apply(ep *types.Endpoint) {
	a := c.Categorize(ep)
	ep.Category = a.Name
	ep.CategoryGroup = a.Group
	ep.CategoryDisplayName = a.DisplayName
}

// Rollup aggregates categorized endpoints into one Category record per
// distinct name, sorted by name, with endpoint counts and the distinct set of
// methods observed. Tag metadata is attached where the category name matches a
// declared tag. Declared tags that collected no endpoints are included with a
// zero count so catalog queries can opt into listing them.
func (c *Categorizer) Rollup(endpoints []*types.Endpoint) []*types.Category {
	byName := make(map[string]*types.Category)
	methods := make(map[string]map[string]bool)

	add := func(name string) *types.Category {
		cat, ok := byName[name]
		if !ok {
			cat = &types.Category{Name: name}
			if tag, found := c.tags[name]; found {
				cat.DisplayName = tag.DisplayName
				cat.Description = tag.Description
			}
			cat.Group = c.tagGroups[name]
			byName[name] = cat
			methods[name] = make(map[string]bool)
		}
		return cat
	}

	for _, ep := range endpoints {
		name := ep.Category
		if name == "" {
			name = types.UncategorizedName
		}
		cat := add(name)
		cat.EndpointCount++
		methods[name][ep.Method] = true
	}
	for name := range c.tags {
		add(name)
	}

	out := make([]*types.Category, 0, len(byName))
	for name, cat := range byName {
		cat.Methods = sortedKeys(methods[name])
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

var versionSegment = regexp.MustCompile(`^v\d+$`)

// CategoryFromPath derives a category name from a path template. Placeholder
// segments such as {campaignId} are dropped, a version segment such as v2
// directly after the prefix is skipped, and the segment after the prefix
// becomes the category, lower-cased. A single-segment path names its own
// category. Returns "" when the path has no usable segment.
func CategoryFromPath(path string) string {
	var segments []string
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || strings.HasPrefix(seg, "{") {
			continue
		}
		segments = append(segments, seg)
	}
	if len(segments) == 0 {
		return ""
	}
	idx := 1
	if idx < len(segments) && versionSegment.MatchString(strings.ToLower(segments[idx])) {
		idx++
	}
	if idx < len(segments) {
		return strings.ToLower(segments[idx])
	}
	if versionSegment.MatchString(strings.ToLower(segments[0])) {
		return ""
	}
	return strings.ToLower(segments[0])
}

var upperFirst = cases.Upper(language.Und)

// TagFromCategory converts a category filter value into the tag form used by
// the stored tag lists: first character upper-cased, underscores in the
// remainder converted to hyphens. "search_promo" becomes "Search-promo".
func TagFromCategory(name string) string {
	runes := []rune(name)
	if len(runes) == 0 {
		return ""
	}
	head := upperFirst.String(string(runes[0]))
	rest := strings.ReplaceAll(string(runes[1:]), "_", "-")
	return head + rest
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
