package services

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/gajahealth/reportdesk/internal/models"
)

// defaultWindowDays is how far back the list reaches when no range is given.
const defaultWindowDays = 14

type SearchMode string

const (
	ModeNone         SearchMode = ""
	ModeTitleContent SearchMode = "title_content"
	ModeCategory     SearchMode = "category"
)

// ParseMode maps the query-string filter value to a mode. Unknown or absent
// values fall back to title+content, matching the UI default; "none" is
// explicit no-filtering.
func ParseMode(s string) SearchMode {
	switch s {
	case "category":
		return ModeCategory
	case "none":
		return ModeNone
	default:
		return ModeTitleContent
	}
}

// SearchQuery is one list/search request, already scoped by policy.
type SearchQuery struct {
	Scope []string
	From  string // YYYY-MM-DD inclusive; blank defaults to today-14d
	To    string // YYYY-MM-DD inclusive; blank defaults to today
	Text  string
	Mode  SearchMode
}

// MatchDetail is one section that caused a category-mode hit.
type MatchDetail struct {
	Category string `json:"category"`
	Content  string `json:"content"`
}

// SearchResult is a retained report annotated for presentation.
type SearchResult struct {
	Report   models.Report `json:"report"`
	HasFiles bool          `json:"has_files"`
	Matches  []MatchDetail `json:"match_details"`
}

// SearchService evaluates list/search queries against the report repository.
type SearchService struct {
	db *gorm.DB
}

func NewSearchService(db *gorm.DB) *SearchService {
	return &SearchService{db: db}
}

// Search returns the reports in the date window and department scope, newest
// insert first (id descending — insertion order, not date order). Blank search
// text always takes the unfiltered path regardless of mode.
func (s *SearchService) Search(ctx context.Context, q SearchQuery) ([]SearchResult, error) {
	from, to := q.From, q.To
	today := time.Now()
	if from == "" {
		from = today.AddDate(0, 0, -defaultWindowDays).Format(dateLayout)
	}
	if to == "" {
		to = today.Format(dateLayout)
	}

	// One fixed parameterized query for the base set; the mode branches only
	// ever narrow it in memory.
	var reports []models.Report
	err := s.db.WithContext(ctx).
		Preload("Sections").
		Preload("Attachments").
		Where("date BETWEEN ? AND ?", from, to).
		Where("department IN ?", q.Scope).
		Order("id DESC").
		Find(&reports).Error
	if err != nil {
		return nil, err
	}

	text := strings.ToLower(strings.TrimSpace(q.Text))
	mode := q.Mode
	if text == "" {
		mode = ModeNone
	}

	results := make([]SearchResult, 0, len(reports))
	for _, r := range reports {
		res := SearchResult{Report: r, HasFiles: len(r.Attachments) > 0, Matches: []MatchDetail{}}
		switch mode {
		case ModeCategory:
			for _, sec := range r.Sections {
				if strings.Contains(strings.ToLower(sec.Category), text) {
					res.Matches = append(res.Matches, MatchDetail{Category: sec.Category, Content: sec.Content})
				}
			}
			if len(res.Matches) == 0 {
				continue
			}
		case ModeTitleContent:
			if !matchesTitleOrContent(r, text) {
				continue
			}
		}
		results = append(results, res)
	}
	return results, nil
}

func matchesTitleOrContent(r models.Report, text string) bool {
	if strings.Contains(strings.ToLower(r.Title), text) {
		return true
	}
	for _, sec := range r.Sections {
		if strings.Contains(strings.ToLower(sec.Content), text) {
			return true
		}
	}
	return false
}
