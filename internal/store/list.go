package store

import (
	"fmt"

	"github.com/engramdev/engram/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// List returns an offset-paginated, filtered page of memories. A count query
// runs only when the caller asked for the total; otherwise HasNextPage is
// derived from fetching one row past the page boundary.
func (s *MemoryStore) List(req *models.ListRequest) (*models.ListResponse, error) {
	if err := validateListRequest(req); err != nil {
		return nil, err
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	offset := (page - 1) * pageSize

	where, args := buildFilterClause(req.Filters)

	order := "created_at DESC"
	if req.SortByImportance {
		order = "importance DESC, created_at DESC"
	}

	var total *int
	if req.IncludeTotal {
		countQuery := fmt.Sprintf("SELECT COUNT(*) FROM memories %s", where)
		var n int
		if err := s.db.QueryRow(countQuery, args...).Scan(&n); err != nil {
			return nil, fmt.Errorf("count memories: %w", err)
		}
		total = &n
	}

	// Fetch one extra row so hasNextPage is correct without a count.
	query := fmt.Sprintf(`SELECT %s FROM memories %s ORDER BY %s LIMIT ? OFFSET ?`,
		memoryColumns, where, order)
	queryArgs := append(args, pageSize+1, offset)
	rows, err := s.db.Query(query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	memories, err := s.scanMany(rows)
	if err != nil {
		return nil, err
	}

	hasNext := len(memories) > pageSize
	if hasNext {
		memories = memories[:pageSize]
	}

	pg := models.Pagination{
		Page:        page,
		PageSize:    pageSize,
		Total:       total,
		HasNextPage: hasNext,
		HasPrevPage: page > 1,
	}
	if total != nil {
		tp := *total / pageSize
		if *total%pageSize != 0 {
			tp++
		}
		pg.TotalPages = &tp
		pg.HasNextPage = offset+len(memories) < *total
	}

	if memories == nil {
		memories = []*models.Memory{}
	}
	return &models.ListResponse{Memories: memories, Pagination: pg}, nil
}

// validateListRequest rejects malformed pagination input before any I/O.
func validateListRequest(req *models.ListRequest) error {
	if req.Page < 0 {
		return fmt.Errorf("page must not be negative, got %d", req.Page)
	}
	if req.PageSize < 0 {
		return fmt.Errorf("pageSize must not be negative, got %d", req.PageSize)
	}
	f := req.Filters
	if f.Since != nil && f.Until != nil && *f.Since >= *f.Until {
		return fmt.Errorf("since (%d) must be before until (%d)", *f.Since, *f.Until)
	}
	if f.MinImportance != nil && (*f.MinImportance < models.MinImportance || *f.MinImportance > models.MaxImportance) {
		return fmt.Errorf("minImportance out of range: %d", *f.MinImportance)
	}
	if f.MaxImportance != nil && (*f.MaxImportance < models.MinImportance || *f.MaxImportance > models.MaxImportance) {
		return fmt.Errorf("maxImportance out of range: %d", *f.MaxImportance)
	}
	return nil
}
