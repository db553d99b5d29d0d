// Package drawer renders pipeline definition graphs as Graphviz DOT files,
// optionally coloured with the step statuses of an execution.
package drawer

import (
	"fmt"
	"io"
	"os"
	"text/template"
	"time"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
	colors "gopkg.in/go-playground/colors.v1" //nolint

	"github.com/modelrocket/sagerun/internal/store"
	"github.com/modelrocket/sagerun/pkg/pipeline/model"
)

const elapsedResolution = time.Second

// DOTDrawer draws the pipeline graph into a DOT file.
type DOTDrawer struct {
	graph       graph.Graph[string, string]
	store       store.CustomStore[string, string]
	steps       map[string]struct{}
	dotFileName string
}

// NewDOTDrawer creates a drawer writing to the given file.
func NewDOTDrawer(dotFileName string) *DOTDrawer {
	st := store.New()

	return &DOTDrawer{
		dotFileName: dotFileName,
		store:       st,
		graph:       graph.NewWithStore(graph.StringHash, st, graph.Directed()),
		steps:       make(map[string]struct{}),
	}
}

// AddStep adds a step to the pipeline graph.
func (d *DOTDrawer) AddStep(name string) error {
	err := d.graph.AddVertex(name)
	if err != nil {
		return errors.Wrap(err, "unable to add vertex")
	}

	d.steps[name] = struct{}{}

	return nil
}

// AddLink adds a dependency edge between parent and child steps.
func (d *DOTDrawer) AddLink(parentName, childName string) error {
	err := d.graph.AddEdge(parentName, childName)
	if err != nil {
		return errors.Wrapf(err, "unable to add edge from %s to %s", parentName, childName)
	}

	return nil
}

func statusColor(status model.StepStatus) (string, error) {
	var r, g, b uint8

	switch status {
	case model.StepStatusSucceeded:
		g = 200
	case model.StepStatusFailed:
		r = 220
	case model.StepStatusExecuting, model.StepStatusStarting:
		b = 220
	case model.StepStatusStopped, model.StepStatusStopping:
		r, g = 230, 150
	default:
		r, g, b = 180, 180, 180
	}

	hex, err := colors.RGB(r, g, b) //nolint
	if err != nil {
		return "", errors.Wrap(err, "unable to build colour")
	}

	return hex.ToHEX().String(), nil
}

// SetStatus labels a step with its execution status and elapsed time.
func (d *DOTDrawer) SetStatus(info model.StepInfo) error {
	if _, ok := d.steps[info.Name]; !ok {
		return errors.Wrapf(graph.ErrVertexNotFound, "step %s", info.Name)
	}

	fill, err := statusColor(info.Status)
	if err != nil {
		return err
	}

	label := string(info.Status)
	if elapsed := info.Elapsed(); elapsed > 0 {
		label += ", " + elapsed.Round(elapsedResolution).String()
	}

	d.store.UpdateVertex(info.Name, func(props *graph.VertexProperties) {
		props.Attributes["style"] = "filled"
		props.Attributes["fillcolor"] = fill
		props.Attributes["xlabel"] = label
	})

	return nil
}

// Draw writes the DOT file.
func (d *DOTDrawer) Draw() error {
	file, err := os.Create(d.dotFileName)
	if err != nil {
		return errors.Wrapf(err, "unable to create file %s", d.dotFileName)
	}
	defer file.Close()

	err = dot(d.graph, file)
	if err != nil {
		return errors.Wrapf(err, "unable to render dot file %s", d.dotFileName)
	}

	return nil
}

//nolint:lll //this is a template
const dotTemplate = `strict {{.GraphType}} {
	{{range $k, $v := .Attributes}}
		{{$k}}="{{$v}}";
	{{end}}
	{{range $s := .Statements}}
		"{{.Source}}" {{if .Target}}{{$.EdgeOperator}} "{{.Target}}" [ {{range $k, $v := .EdgeAttributes}}{{$k}}="{{$v}}", {{end}} weight={{.EdgeWeight}} ]{{else}}[ {{range $k, $v := .HTMLAttributes}}{{$k}}={{$v}}, {{end}} {{range $k, $v := .SourceAttributes}}{{$k}}="{{$v}}", {{end}} weight={{.SourceWeight}} ]{{end}};
	{{end}}
	}
	`

type description struct {
	GraphType    string
	Attributes   map[string]string
	EdgeOperator string
	Statements   []statement
}

type statement struct {
	Source           interface{}
	Target           interface{}
	SourceAttributes map[string]string
	HTMLAttributes   map[string]string
	EdgeAttributes   map[string]string
	SourceWeight     int
	EdgeWeight       int
}

func dot[K comparable, T any](g graph.Graph[K, T], wrt io.Writer) error {
	desc, err := generateDOT(g)
	if err != nil {
		return fmt.Errorf("failed to generate DOT description: %w", err)
	}

	return renderDOT(wrt, desc)
}

func generateDOT[K comparable, T any](gra graph.Graph[K, T]) (description, error) {
	desc := description{
		GraphType:    "graph",
		Attributes:   make(map[string]string),
		EdgeOperator: "--",
		Statements:   make([]statement, 0),
	}

	if gra.Traits().IsDirected {
		desc.GraphType = "digraph"
		desc.EdgeOperator = "->"
	}

	adjacencyMap, err := gra.AdjacencyMap()
	if err != nil {
		return desc, errors.Wrap(err, "unable to get adjacency map")
	}

	for vertex, adjacencies := range adjacencyMap {
		_, sourceProperties, err := gra.VertexWithProperties(vertex)
		if err != nil {
			return desc, errors.Wrap(err, "unable to get vertex properties")
		}

		htmlAttributes := make(map[string]string)

		if xlabel, ok := sourceProperties.Attributes["xlabel"]; ok {
			htmlAttributes["label"] = fmt.Sprintf(`<%+v <BR /> <FONT POINT-SIZE="12">%s</FONT>>`, vertex, xlabel)

			delete(sourceProperties.Attributes, "xlabel")
		}

		stmt := statement{
			Source:           vertex,
			SourceWeight:     sourceProperties.Weight,
			SourceAttributes: sourceProperties.Attributes,
			HTMLAttributes:   htmlAttributes,
		}
		desc.Statements = append(desc.Statements, stmt)

		for adjacency, edge := range adjacencies {
			stmt := statement{
				Source:         vertex,
				Target:         adjacency,
				EdgeWeight:     edge.Properties.Weight,
				EdgeAttributes: edge.Properties.Attributes,
			}
			desc.Statements = append(desc.Statements, stmt)
		}
	}

	return desc, nil
}

func renderDOT(wrt io.Writer, desc description) error {
	tpl, err := template.New("dotTemplate").Parse(dotTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	err = tpl.Execute(wrt, desc)
	if err != nil {
		return errors.Wrap(err, "unable to execute template")
	}

	return nil
}

var _ Drawer = (*DOTDrawer)(nil)
