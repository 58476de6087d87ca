package chat

// DefaultBreakpoint is the width at which both side panels open.
const DefaultBreakpoint = 1024

// Layout tracks side panel visibility.
type Layout struct {
	breakpoint int
	width      int

	ShowLeftSidebar  bool
	ShowContextPanel bool
}

func NewLayout(breakpoint, width int) *Layout {
	if breakpoint <= 0 {
		breakpoint = DefaultBreakpoint
	}
	l := &Layout{breakpoint: breakpoint}
	l.Resize(width)
	return l
}

// Resize sets both panels from the width alone. Manual toggles do not
// survive a resize.
func (l *Layout) Resize(width int) {
	l.width = width
	wide := width >= l.breakpoint
	l.ShowLeftSidebar = wide
	l.ShowContextPanel = wide
}

func (l *Layout) Width() int { return l.width }

func (l *Layout) Wide() bool { return l.width >= l.breakpoint }

func (l *Layout) ToggleLeftSidebar() { l.ShowLeftSidebar = !l.ShowLeftSidebar }

func (l *Layout) ToggleContextPanel() { l.ShowContextPanel = !l.ShowContextPanel }
