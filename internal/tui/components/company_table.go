package components

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mmcdole/rolodex/internal/domain"
	"github.com/mmcdole/rolodex/internal/tui/styles"
)

// RowState answers per-row questions the table cannot know itself
type RowState interface {
	IsSelected(id domain.CompanyID) bool
	Displayed(id domain.CompanyID) domain.CompanyStatus
}

// CompanyTable renders one page of companies with selection and status marks
type CompanyTable struct {
	table     table.Model
	companies []domain.Company
	width     int
}

// NewCompanyTable creates an empty, focused table
func NewCompanyTable(keys table.KeyMap) CompanyTable {
	t := table.New(
		table.WithColumns(columnsFor(80)),
		table.WithFocused(true),
		table.WithKeyMap(keys),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.DimGray).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(styles.White).
		Background(styles.SlateLight).
		Bold(false)
	t.SetStyles(s)

	return CompanyTable{table: t, width: 80}
}

func columnsFor(width int) []table.Column {
	const fixed = 3 + 3 + 18 + 12 + 10 + 10
	name := max(16, (width-fixed)/2)
	loc := max(10, width-fixed-name)
	return []table.Column{
		{Title: " ", Width: 3},
		{Title: " ", Width: 3},
		{Title: "Company", Width: name},
		{Title: "Industry", Width: 18},
		{Title: "Stage", Width: 12},
		{Title: "Location", Width: loc},
		{Title: "Employees", Width: 10},
		{Title: "Funding", Width: 10},
	}
}

// SetSize sets the table dimensions
func (t *CompanyTable) SetSize(width, height int) {
	t.width = width
	t.table.SetColumns(columnsFor(width))
	t.table.SetWidth(width)
	t.table.SetHeight(max(3, height))
}

// SetCompanies replaces the page, keeping the cursor in range
func (t *CompanyTable) SetCompanies(companies []domain.Company, state RowState) {
	t.companies = companies
	t.Refresh(state)
	if c := t.table.Cursor(); c >= len(companies) {
		t.table.SetCursor(max(0, len(companies)-1))
	}
}

// Refresh rebuilds the rows from current selection and status
func (t *CompanyTable) Refresh(state RowState) {
	rows := make([]table.Row, len(t.companies))
	for i, c := range t.companies {
		rows[i] = table.Row{
			selectionMark(state.IsSelected(c.ID)),
			statusMark(state.Displayed(c.ID)),
			c.Name,
			c.Industry,
			c.Stage,
			c.Location,
			formatCount(c.EmployeeCount),
			formatFunding(c.TotalFunding),
		}
	}
	t.table.SetRows(rows)
}

// Current returns the company under the cursor
func (t CompanyTable) Current() (domain.Company, bool) {
	i := t.table.Cursor()
	if i < 0 || i >= len(t.companies) {
		return domain.Company{}, false
	}
	return t.companies[i], true
}

// IDs returns the page ids in display order
func (t CompanyTable) IDs() []domain.CompanyID {
	ids := make([]domain.CompanyID, len(t.companies))
	for i, c := range t.companies {
		ids[i] = c.ID
	}
	return ids
}

// Len returns the number of rows
func (t CompanyTable) Len() int {
	return len(t.companies)
}

// Update routes navigation keys to the table
func (t CompanyTable) Update(msg tea.Msg) (CompanyTable, tea.Cmd) {
	var cmd tea.Cmd
	t.table, cmd = t.table.Update(msg)
	return t, cmd
}

// View renders the table
func (t CompanyTable) View() string {
	if len(t.companies) == 0 {
		return styles.DimStyle.Render("No companies")
	}
	return t.table.View()
}

func selectionMark(selected bool) string {
	if selected {
		return styles.SelectedChar
	}
	return styles.OpenChar
}

// statusMark uses plain glyphs; styled text would break the table's
// width calculation.
func statusMark(s domain.CompanyStatus) string {
	switch s {
	case domain.StatusLiked:
		return styles.LikedChar
	case domain.StatusIgnored:
		return styles.IgnoredChar
	default:
		return ""
	}
}

func formatCount(n int) string {
	if n <= 0 {
		return "-"
	}
	return strconv.Itoa(n)
}

// formatFunding renders dollars as $1.2M / $350K
func formatFunding(n int64) string {
	switch {
	case n <= 0:
		return "-"
	case n >= 1_000_000_000:
		return fmt.Sprintf("$%.1fB", float64(n)/1e9)
	case n >= 1_000_000:
		return fmt.Sprintf("$%.1fM", float64(n)/1e6)
	case n >= 1_000:
		return fmt.Sprintf("$%.0fK", float64(n)/1e3)
	default:
		return fmt.Sprintf("$%d", n)
	}
}
