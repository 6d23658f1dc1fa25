package ado

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/lherron/orgsync/internal/domain"
)

const commentPageSize = 200

type wireComment struct {
	ID        int       `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdDate"`
	CreatedBy struct {
		DisplayName string `json:"displayName"`
		UniqueName  string `json:"uniqueName"`
	} `json:"createdBy"`
}

func (w wireComment) toDomain() domain.Comment {
	author := w.CreatedBy.DisplayName
	if author == "" {
		author = w.CreatedBy.UniqueName
	}
	return domain.Comment{ID: w.ID, Text: w.Text, Author: author, CreatedAt: w.CreatedAt}
}

func (c *Client) commentsURL(workItemID int, query url.Values) string {
	base := c.baseURL + "/" + url.PathEscape(c.project) + "/_apis/wit/workItems/" + strconv.Itoa(workItemID) + "/comments"
	return c.buildURL(base, query, commentsAPIVersion)
}

// ListComments pages through every comment, oldest first.
func (c *Client) ListComments(ctx context.Context, workItemID int) ([]domain.Comment, error) {
	var comments []domain.Comment
	token := ""
	for {
		q := url.Values{
			"$top":  {strconv.Itoa(commentPageSize)},
			"order": {"asc"},
		}
		if token != "" {
			q.Set("continuationToken", token)
		}
		var page struct {
			Comments          []wireComment `json:"comments"`
			ContinuationToken string        `json:"continuationToken"`
		}
		if err := c.do(ctx, http.MethodGet, c.commentsURL(workItemID, q), "", nil, &page); err != nil {
			return nil, fmt.Errorf("list comments of %d: %w", workItemID, err)
		}
		for _, wc := range page.Comments {
			comments = append(comments, wc.toDomain())
		}
		if page.ContinuationToken == "" || page.ContinuationToken == token {
			return comments, nil
		}
		token = page.ContinuationToken
	}
}

// AddComment appends a comment.
func (c *Client) AddComment(ctx context.Context, workItemID int, text string) (domain.Comment, error) {
	var out wireComment
	in := map[string]string{"text": text}
	if err := c.do(ctx, http.MethodPost, c.commentsURL(workItemID, nil), contentJSON, in, &out); err != nil {
		return domain.Comment{}, fmt.Errorf("add comment to %d: %w", workItemID, err)
	}
	return out.toDomain(), nil
}
