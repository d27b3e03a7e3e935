package http

import (
	"embed"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"strings"

	"mldash/backend"
	"mldash/ml"
	"mldash/session"
)

//go:embed templates/*.html static/*
var assets embed.FS

var dashboardTemplate = template.Must(template.New("dashboard.html").Funcs(template.FuncMap{
	"join": strings.Join,
}).ParseFS(assets, "templates/dashboard.html"))

func staticHandler() http.Handler {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

type kindOption struct {
	Value    ml.ModelKind
	Title    string
	Selected bool
}

type fieldView struct {
	ml.Feature
	Value float64
}

type endpointDoc struct {
	Method string
	Path   string
	Doc    string
}

type dashboardView struct {
	Health       backend.HealthStatus
	HealthLevel  session.NoticeLevel
	Kinds        []kindOption
	Kind         ml.ModelKind
	Title        string
	Icon         string
	Slider       bool
	Manual       bool
	Fields       []fieldView
	State        session.Snapshot
	InputJSON    string
	BackendURL   string
	Endpoints    []endpointDoc
	ErrorMessage string
}

var backendEndpoints = []endpointDoc{
	{"GET", "/", "Welcome message"},
	{"GET", "/health", "Health check"},
	{"POST", "/iris/predict", "Iris prediction"},
	{"POST", "/wine/predict", "Wine prediction"},
	{"GET", "/iris/example", "Iris example data"},
	{"GET", "/wine/example", "Wine example data"},
	{"POST", "/predict", "Legacy iris endpoint"},
}

func newDashboardView(snap session.Snapshot, health backend.HealthStatus, backendURL string) dashboardView {
	view := dashboardView{
		Health:       health,
		HealthLevel:  healthLevel(health.State),
		Kind:         snap.Kind,
		Title:        snap.Kind.Title(),
		Icon:         kindIcon(snap.Kind),
		Slider:       snap.Kind == ml.Iris,
		Manual:       snap.Method == ml.Manual,
		State:        snap,
		BackendURL:   backendURL,
		Endpoints:    backendEndpoints,
		ErrorMessage: snap.Error,
	}
	if view.Title == ml.Iris.Title() {
		view.Title += " Classification"
	}

	for _, k := range ml.Kinds {
		view.Kinds = append(view.Kinds, kindOption{Value: k, Title: k.Title(), Selected: k == snap.Kind})
	}
	for _, f := range ml.Schema(snap.Kind) {
		view.Fields = append(view.Fields, fieldView{Feature: f, Value: snap.ManualValues[f.Name]})
	}
	if snap.DataAvailable {
		view.InputJSON = snap.Record.Pretty()
	}
	return view
}

func healthLevel(state backend.HealthState) session.NoticeLevel {
	switch state {
	case backend.Online:
		return session.Success
	case backend.Problem:
		return session.Warning
	default:
		return session.Failure
	}
}

func kindIcon(kind ml.ModelKind) string {
	if kind == ml.Wine {
		return "🍷"
	}
	return "🌸"
}

func renderDashboard(w io.Writer, view dashboardView) error {
	return dashboardTemplate.Execute(w, view)
}
