// Package workflow defines the fixed multi-stage survey graph and the static
// metadata attached to each stage.
package workflow

// Stage identifies one of the four survey stages an organisation moves
// through during a reporting campaign.
type Stage string

const (
	StageInitial Stage = "initial"
	StageStartup Stage = "startup"
	StageStatus  Stage = "status"
	StageFinal   Stage = "final"
)

// Definition carries the static metadata for one stage: which upstream app
// serves it, the tags used to mark submission and download, the event type
// names recorded in the event log, and the notification content sent when
// the stage's form becomes available.
type Definition struct {
	Stage         Stage
	AppName       string
	SubmittedTag  string
	DownloadedTag string

	CreatedEvent    string
	DownloadedEvent string

	// VisibilityOffset is the ISO-8601 duration added to "today" when a
	// form's start date has already passed.
	VisibilityOffset string

	EmailSubject string
	EmailBody    string
}

// Graph is the immutable stage graph: Initial -> Startup -> Status -> Final.
type Graph struct {
	defs  map[Stage]Definition
	next  map[Stage]Stage
	byApp map[string]Stage
	order []Stage
}

// NewGraph builds a graph from stage definitions in traversal order.
func NewGraph(defs []Definition) *Graph {
	g := &Graph{
		defs:  make(map[Stage]Definition, len(defs)),
		next:  make(map[Stage]Stage, len(defs)),
		byApp: make(map[string]Stage, len(defs)),
	}
	for i, d := range defs {
		g.defs[d.Stage] = d
		g.byApp[d.AppName] = d.Stage
		g.order = append(g.order, d.Stage)
		if i > 0 {
			g.next[defs[i-1].Stage] = d.Stage
		}
	}
	return g
}

// Default returns the production stage graph for the 2025 campaign.
func Default() *Graph {
	return NewGraph([]Definition{
		{
			Stage:            StageInitial,
			AppName:          "regvil-2025-initiell",
			SubmittedTag:     "InitiellSkjemaLevert",
			DownloadedTag:    "InitiellSkjemaDownloaded",
			CreatedEvent:     "initiell_skjema_instance_created",
			DownloadedEvent:  "initiell_skjema_instance_downloaded",
			VisibilityOffset: "P7D",
			EmailSubject:     "Rapportering av digitaliseringstiltak",
			EmailBody:        "Din virksomhet har fått et skjema for rapportering av digitaliseringstiltak i Altinn. Logg inn i Altinn for å fylle ut skjemaet.",
		},
		{
			Stage:            StageStartup,
			AppName:          "regvil-2025-oppstart",
			SubmittedTag:     "OppstartSkjemaLevert",
			DownloadedTag:    "OppstartSkjemaDownloaded",
			CreatedEvent:     "oppstart_skjema_instance_created",
			DownloadedEvent:  "oppstart_skjema_instance_downloaded",
			VisibilityOffset: "P7D",
			EmailSubject:     "Oppstartsrapportering for digitaliseringstiltak",
			EmailBody:        "Oppstartsskjemaet for digitaliseringstiltaket er nå tilgjengelig i Altinn. Logg inn i Altinn for å fylle ut skjemaet.",
		},
		{
			Stage:            StageStatus,
			AppName:          "regvil-2025-status",
			SubmittedTag:     "StatusSkjemaLevert",
			DownloadedTag:    "StatusSkjemaDownloaded",
			CreatedEvent:     "status_skjema_instance_created",
			DownloadedEvent:  "status_skjema_instance_downloaded",
			VisibilityOffset: "P7D",
			EmailSubject:     "Statusrapportering for digitaliseringstiltak",
			EmailBody:        "Statusskjemaet for digitaliseringstiltaket er nå tilgjengelig i Altinn. Logg inn i Altinn for å fylle ut skjemaet.",
		},
		{
			Stage:            StageFinal,
			AppName:          "regvil-2025-slutt",
			SubmittedTag:     "SluttSkjemaLevert",
			DownloadedTag:    "SluttSkjemaDownloaded",
			CreatedEvent:     "slutt_skjema_instance_created",
			DownloadedEvent:  "slutt_skjema_instance_downloaded",
			VisibilityOffset: "P7D",
			EmailSubject:     "Sluttrapportering for digitaliseringstiltak",
			EmailBody:        "Sluttskjemaet for digitaliseringstiltaket er nå tilgjengelig i Altinn. Logg inn i Altinn for å fylle ut skjemaet.",
		},
	})
}

// Definition returns the metadata for a stage.
func (g *Graph) Definition(s Stage) (Definition, bool) {
	d, ok := g.defs[s]
	return d, ok
}

// Next returns the successor stage definition, or false when s is terminal.
func (g *Graph) Next(s Stage) (Definition, bool) {
	ns, ok := g.next[s]
	if !ok {
		return Definition{}, false
	}
	return g.defs[ns], true
}

// IsTerminal reports whether s has no successor.
func (g *Graph) IsTerminal(s Stage) bool {
	_, ok := g.next[s]
	return !ok
}

// ByApp resolves a stage definition from the upstream application name.
func (g *Graph) ByApp(appName string) (Definition, bool) {
	s, ok := g.byApp[appName]
	if !ok {
		return Definition{}, false
	}
	return g.defs[s], true
}

// Stages returns the stages in traversal order.
func (g *Graph) Stages() []Stage {
	out := make([]Stage, len(g.order))
	copy(out, g.order)
	return out
}
