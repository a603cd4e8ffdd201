// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import "crudschema/internal/schema"

// ListQuery holds the listing query parameters. Page is zero based.
type ListQuery struct {
	Page    int    `form:"page" binding:"min=0"`
	Size    *int   `form:"size"`
	Sort    string `form:"sort"`
	Search  string `form:"search"`
	Context string `form:"context"`
}

// SchemaQuery holds the schema introspection parameters.
type SchemaQuery struct {
	Context string `form:"context"`
	Wrap    bool   `form:"wrap"`
}

// IDsRequest is the body of attach and detach calls.
type IDsRequest struct {
	IDs []any `json:"ids" binding:"required,min=1"`
}

// SuccessResponse for operations without data.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ModelsResponse lists the loaded models.
type ModelsResponse struct {
	Models []string `json:"models"`
}

// ReloadResponse reports a schema reload.
type ReloadResponse struct {
	Models []string       `json:"models"`
	Issues []schema.Issue `json:"issues"`
}
