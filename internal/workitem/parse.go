package workitem

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// itemRecord accepts both camelCase and snake_case field spellings.
type itemRecord struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Status       string          `json:"status"`
	Stage        string          `json:"stage"`
	UpdatedAt    string          `json:"updatedAt"`
	UpdatedAtAlt string          `json:"updated_at"`
	Children     []itemRecord    `json:"children"`
	Comments     []commentRecord `json:"comments"`
}

type commentRecord struct {
	ID           json.RawMessage `json:"id"`
	Author       string          `json:"author"`
	Comment      string          `json:"comment"`
	Body         string          `json:"body"`
	Text         string          `json:"text"`
	CreatedAt    string          `json:"createdAt"`
	CreatedAtAlt string          `json:"created_at"`
	Timestamp    string          `json:"timestamp"`
}

// parseCandidates decodes a stage listing. The tracker emits either a bare
// array or an object wrapping the array.
func parseCandidates(data []byte) ([]Candidate, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return []Candidate{}, nil
	}

	var arr []itemRecord
	if err := json.Unmarshal(data, &arr); err == nil {
		return convertCandidates(arr), nil
	}

	var wrapper struct {
		Items     []itemRecord `json:"items"`
		WorkItems []itemRecord `json:"workItems"`
		Results   []itemRecord `json:"results"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("unexpected list output: %w", err)
	}
	switch {
	case wrapper.WorkItems != nil:
		return convertCandidates(wrapper.WorkItems), nil
	case wrapper.Items != nil:
		return convertCandidates(wrapper.Items), nil
	case wrapper.Results != nil:
		return convertCandidates(wrapper.Results), nil
	}
	return []Candidate{}, nil
}

// parseRecord decodes the output of a show call. Children and comments may
// sit on the item itself or beside it in a wrapper object.
func parseRecord(data []byte) (Record, error) {
	var wrapper struct {
		WorkItem *itemRecord     `json:"workItem"`
		Item     *itemRecord     `json:"item"`
		Children []itemRecord    `json:"children"`
		Comments []commentRecord `json:"comments"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(data), &wrapper); err != nil {
		return Record{}, fmt.Errorf("unexpected show output: %w", err)
	}

	item := wrapper.WorkItem
	if item == nil {
		item = wrapper.Item
	}
	if item == nil {
		var flat itemRecord
		if err := json.Unmarshal(data, &flat); err != nil {
			return Record{}, fmt.Errorf("unexpected show output: %w", err)
		}
		item = &flat
	}
	if strings.TrimSpace(item.ID) == "" {
		return Record{}, ErrNotFound
	}

	children := item.Children
	if len(children) == 0 {
		children = wrapper.Children
	}
	comments := item.Comments
	if len(comments) == 0 {
		comments = wrapper.Comments
	}

	rec := Record{Candidate: item.toCandidate()}
	for _, c := range children {
		if strings.TrimSpace(c.ID) == "" {
			continue
		}
		rec.Children = append(rec.Children, Child{
			ID:     strings.TrimSpace(c.ID),
			Title:  c.Title,
			Status: c.Status,
		})
	}
	for _, c := range comments {
		rec.Comments = append(rec.Comments, c.toComment())
	}
	return rec, nil
}

func convertCandidates(records []itemRecord) []Candidate {
	out := make([]Candidate, 0, len(records))
	for _, rec := range records {
		if strings.TrimSpace(rec.ID) == "" {
			continue
		}
		out = append(out, rec.toCandidate())
	}
	return out
}

func (r itemRecord) toCandidate() Candidate {
	c := Candidate{
		ID:     strings.TrimSpace(r.ID),
		Title:  r.Title,
		Status: r.Status,
		Stage:  r.Stage,
	}
	raw := r.UpdatedAt
	if raw == "" {
		raw = r.UpdatedAtAlt
	}
	if t, ok := ParseTimestamp(raw); ok {
		c.UpdatedAt = &t
	}
	return c
}

func (r commentRecord) toComment() Comment {
	body := r.Comment
	if body == "" {
		body = r.Body
	}
	if body == "" {
		body = r.Text
	}
	id := strings.Trim(string(r.ID), `"`)
	if id == "null" {
		id = ""
	}
	c := Comment{
		ID:     id,
		Author: r.Author,
		Body:   body,
	}
	for _, raw := range []string{r.CreatedAt, r.CreatedAtAlt, r.Timestamp} {
		if t, ok := ParseTimestamp(raw); ok {
			c.CreatedAt = &t
			break
		}
	}
	return c
}
