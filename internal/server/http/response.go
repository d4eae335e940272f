package httpserver

import (
	"github.com/helixir/item-service/internal/database"
	"github.com/helixir/item-service/internal/domain"
)

// Response types for JSON serialization.

type itemResponse struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type readinessResponse struct {
	Status   string                `json:"status"`
	Database database.HealthStatus `json:"database"`
}

// Converter functions

func domainItemToResponse(item domain.Item) itemResponse {
	return itemResponse{
		ID:          item.ID,
		Name:        item.Name,
		Description: item.Description,
	}
}

func domainItemsToResponse(items []domain.Item) []itemResponse {
	resp := make([]itemResponse, len(items))
	for i, item := range items {
		resp[i] = domainItemToResponse(item)
	}
	return resp
}
