package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/chicogong/ytagents/pkg/logger"
	"github.com/chicogong/ytagents/pkg/schemas"
)

const (
	MaxTitleLength = 60
	MaxTags        = 30
	MaxTagsLength  = 500
	MaxHashtags    = 7
	MaxKeywords    = 10

	CategoryEducation = "Education"
	DefaultLanguage   = "en"
	DefaultLicense    = "Standard YouTube License"
)

// MetadataStage writes title, description and tags
type MetadataStage struct {
	LLM LLM
	Log *logger.Logger
}

func (s *MetadataStage) Describe() Descriptor {
	return Descriptor{
		Name:        schemas.StageMetadata,
		Description: "generate SEO title, description, tags and hashtags",
		DependsOn:   []schemas.StageName{schemas.StageResearch, schemas.StageScript},
		Budget:      BudgetLLM,
	}
}

const metadataPrompt = `Create YouTube metadata for a video about "%s".
Summary: %s
Key points:
%s
Return a JSON object with:
  "title": at most 60 characters, keyword early,
  "description": plain text with a hook first and a call to action last,
  "tags": 15-20 searchable tags without #,
  "hashtags": 5-7 hashtags with #,
  "keywords": 10 SEO keywords,
  "thumbnail_text": at most 3 words`

func (s *MetadataStage) Run(ctx context.Context, st *State) schemas.StageResult {
	script := st.Script()
	if script == nil {
		return missing(schemas.StageMetadata, schemas.StageScript)
	}
	var keyPoints []string
	if r := st.Research(); r != nil {
		keyPoints = r.KeyPoints
	}

	var data schemas.MetadataData
	err := s.LLM.ExtractJSON(ctx, fmt.Sprintf(metadataPrompt, st.Topic, script.Summary(200), bullets(keyPoints, 5)), &data)
	if err == nil && strings.TrimSpace(data.Title) == "" {
		err = fmt.Errorf("response had no title")
	}
	if err != nil {
		s.Log.Warn("metadata fallback", "workflow_id", st.WorkflowID, "error", err)
		return schemas.Fallback(FallbackMetadata(st.Topic, script.Summary(200), keyPoints), err.Error())
	}

	NormalizeMetadata(&data, st.Topic)
	return schemas.Ok(&data)
}

// NormalizeMetadata enforces the platform limits and fixed fields
func NormalizeMetadata(m *schemas.MetadataData, topic string) {
	m.Title = strings.TrimSpace(m.Title)
	if m.Title == "" {
		m.Title = topic
	}
	m.Title = TruncateTitle(m.Title)
	m.Tags = NormalizeTags(m.Tags)
	m.Hashtags = limit(trimAll(m.Hashtags), MaxHashtags)
	m.Keywords = limit(trimAll(m.Keywords), MaxKeywords)
	if strings.TrimSpace(m.ThumbnailText) == "" {
		m.ThumbnailText = m.Title
	}
	m.Category = CategoryEducation
	m.Language = DefaultLanguage
	m.License = DefaultLicense
}

// TruncateTitle cuts titles longer than the limit and appends an ellipsis
func TruncateTitle(title string) string {
	r := []rune(title)
	if len(r) <= MaxTitleLength {
		return title
	}
	return strings.TrimSpace(string(r[:MaxTitleLength-3])) + "..."
}

// NormalizeTags lower-cases tags, strips '#', keeps at most 30 and stops
// before the joined length (one separator per tag) exceeds 500
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	total := 0
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(strings.ReplaceAll(tag, "#", "")))
		if tag == "" {
			continue
		}
		if len(out) == MaxTags {
			break
		}
		if total+len(tag)+1 > MaxTagsLength {
			continue
		}
		out = append(out, tag)
		total += len(tag) + 1
	}
	return out
}

// FallbackMetadata derives metadata from the topic alone
func FallbackMetadata(topic, summary string, keyPoints []string) *schemas.MetadataData {
	desc := summary
	if len(keyPoints) > 0 {
		desc += "\n\nKey Points:\n" + strings.TrimSuffix(strings.ReplaceAll(bullets(keyPoints, 5), "- ", "• "), "\n")
	}
	desc = strings.TrimSpace(desc + "\n\nSubscribe for more!")

	words := strings.Fields(strings.ToLower(topic))
	tags := append([]string{strings.ToLower(topic)}, words...)
	var hashtag strings.Builder
	hashtag.WriteString("#")
	for _, w := range words {
		r := []rune(w)
		hashtag.WriteString(strings.ToUpper(string(r[0])) + string(r[1:]))
	}

	m := &schemas.MetadataData{
		Title:         topic,
		Description:   desc,
		Tags:          tags,
		Hashtags:      []string{hashtag.String()},
		Keywords:      []string{topic},
		ThumbnailText: topic,
	}
	NormalizeMetadata(m, topic)
	return m
}

func trimAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

func limit(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}
