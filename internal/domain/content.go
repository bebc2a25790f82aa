package domain

import "fmt"

// ContentType identifies a category of embeddable game content
type ContentType string

const (
	ContentTypeNPC       ContentType = "npc"
	ContentTypeLore      ContentType = "lore"
	ContentTypeQuest     ContentType = "quest"
	ContentTypeItem      ContentType = "item"
	ContentTypeAsset     ContentType = "asset"
	ContentTypeCharacter ContentType = "character"
	ContentTypeManifest  ContentType = "manifest"

	// ContentTypeAll is a search-only pseudo-type that fans out across every
	// collection. It is never a valid embedding target.
	ContentTypeAll ContentType = "all"
)

// embeddableFields lists, per content type, the string fields concatenated
// into the embedding text. Order is fixed and part of the embedding contract:
// changing it changes the vectors produced for unchanged content.
var embeddableFields = map[ContentType][]string{
	ContentTypeNPC:       {"name", "title", "description", "personality", "backstory", "dialogueStyle", "faction", "location"},
	ContentTypeLore:      {"title", "category", "summary", "content", "era", "region"},
	ContentTypeQuest:     {"name", "description", "objective", "summary", "reward", "location"},
	ContentTypeItem:      {"name", "type", "description", "rarity", "effect"},
	ContentTypeAsset:     {"name", "description", "style", "tags"},
	ContentTypeCharacter: {"name", "class", "race", "description", "personality", "backstory"},
	ContentTypeManifest:  {"name", "description", "summary"},
}

// manifestContentTypes maps preview-manifest type tags to embedder content
// types. Unknown tags fall back to ContentTypeManifest.
var manifestContentTypes = map[string]ContentType{
	"npcs":       ContentTypeNPC,
	"lore":       ContentTypeLore,
	"quests":     ContentTypeQuest,
	"items":      ContentTypeItem,
	"assets":     ContentTypeAsset,
	"characters": ContentTypeCharacter,
}

// ParseContentType validates a content type string for embedding operations
func ParseContentType(s string) (ContentType, error) {
	t := ContentType(s)
	if _, ok := embeddableFields[t]; !ok {
		return "", ErrInvalidContentType
	}
	return t, nil
}

// ParseSearchContentType validates a content type string for search, where
// "all" is additionally allowed
func ParseSearchContentType(s string) (ContentType, error) {
	if ContentType(s) == ContentTypeAll {
		return ContentTypeAll, nil
	}
	return ParseContentType(s)
}

// EmbeddableContentTypes returns every content type that owns a vector
// collection, in stable order
func EmbeddableContentTypes() []ContentType {
	return []ContentType{
		ContentTypeNPC,
		ContentTypeLore,
		ContentTypeQuest,
		ContentTypeItem,
		ContentTypeAsset,
		ContentTypeCharacter,
		ContentTypeManifest,
	}
}

// EmbeddableFields returns the ordered embedding fields for a content type
func EmbeddableFields(t ContentType) []string {
	return embeddableFields[t]
}

// ContentTypeForManifest maps a manifest type tag to its content type
func ContentTypeForManifest(manifestType string) ContentType {
	if t, ok := manifestContentTypes[manifestType]; ok {
		return t
	}
	return ContentTypeManifest
}

// ContentKey is the identity of an embedding record: one record exists per
// (contentType, contentId) pair, re-embedding overwrites in place.
type ContentKey struct {
	Type ContentType
	ID   string
}

func (k ContentKey) String() string {
	return fmt.Sprintf("%s/%s", k.Type, k.ID)
}
