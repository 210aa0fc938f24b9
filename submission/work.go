package submission

import "strings"

// Copyright types.
const (
	CopyrightOriginal = 1
	CopyrightReprint  = 2
)

// Work is a composed multi-part submission.
type Work struct {
	Title       string
	Description string
	Copyright   int
	// Source is required for reprints.
	Source       string
	ThreadID     int
	Tags         []string
	Cover        string
	NoReprint    int
	DescFormatID int
	Parts        []Part
}

// Part is one uploaded video of a Work.
type Part struct {
	Title       string
	Description string
	// Filename is the remote name of the uploaded video, without directory and extension.
	Filename string
	// BizID is only known for parts that were already published.
	BizID int64
}

// Payload builds the request body of the work.
func (w Work) Payload() map[string]any {
	videos := make([]map[string]any, 0, len(w.Parts))
	for _, p := range w.Parts {
		video := map[string]any{
			"filename": p.Filename,
			"title":    p.Title,
			"desc":     p.Description,
		}
		if p.BizID != 0 {
			video["cid"] = p.BizID
		}
		videos = append(videos, video)
	}

	return map[string]any{
		"copyright":      w.Copyright,
		"videos":         videos,
		"source":         w.Source,
		"tid":            w.ThreadID,
		"title":          w.Title,
		"tag":            joinTags(w.Tags),
		"desc_format_id": w.DescFormatID,
		"desc":           w.Description,
		"no_reprint":     w.NoReprint,
		"cover":          w.Cover,
	}
}

// Split returns one single-part work per part. Empty part titles and descriptions fall back to the work's.
func (w Work) Split() []Work {
	works := make([]Work, 0, len(w.Parts))
	for _, p := range w.Parts {
		single := w
		if p.Title != "" {
			single.Title = p.Title
		} else {
			p.Title = w.Title
		}
		if p.Description != "" {
			single.Description = p.Description
		} else {
			p.Description = w.Description
		}
		single.Tags = append([]string(nil), w.Tags...)
		single.Parts = []Part{p}
		works = append(works, single)
	}
	return works
}

// joinTags drops empty and duplicate tags, keeping the first occurrence.
func joinTags(tags []string) string {
	seen := map[string]bool{}
	var unique []string
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		unique = append(unique, tag)
	}
	return strings.Join(unique, ",")
}
