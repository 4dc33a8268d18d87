// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package presenter renders the notification that is raised after each report cycle.
package presenter

import (
	"bytes"
	"errors"
	"fmt"
	"text/template"
	"time"

	"github.com/vorlif/humanize"
	"github.com/vorlif/humanize/locale/de"
	"github.com/vorlif/humanize/locale/es"
	"github.com/vorlif/spreak"

	"github.com/wneessen/locreport/internal/config"
	"github.com/wneessen/locreport/internal/geocode"
	"github.com/wneessen/locreport/internal/position"
)

var ErrNoLocalizer = errors.New("localizer is required")

// TemplateContext is the data the summary and body templates are executed with.
type TemplateContext struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
	Source    string
	Address   geocode.Address

	At          time.Time
	Success     bool
	Error       string
	Transmitter string
}

type Presenter struct {
	SummaryTemplate *template.Template
	BodyTemplate    *template.Template

	localizer *spreak.Localizer
	humanizer *humanize.Humanizer
}

func New(conf *config.Config, loc *spreak.Localizer) (*Presenter, error) {
	if loc == nil {
		return nil, ErrNoLocalizer
	}
	collection := humanize.MustNew(humanize.WithLocale(de.New(), es.New()))
	pres := &Presenter{
		localizer: loc,
		humanizer: collection.CreateHumanizer(loc.Language()),
	}

	var err error
	if pres.SummaryTemplate, err = pres.parse("summary", conf.Notification.Summary); err != nil {
		return nil, err
	}
	if pres.BodyTemplate, err = pres.parse("body", conf.Notification.Body); err != nil {
		return nil, err
	}

	// test-render with sample data
	sample := pres.BuildContext(position.Position{Lat: 12.34, Lng: -56.78}, geocode.Address{},
		"http", time.Now(), nil)
	if _, _, err = pres.Render(sample); err != nil {
		return nil, err
	}
	return pres, nil
}

// BuildContext assembles the template data for a single transmission.
func (p *Presenter) BuildContext(pos position.Position, addr geocode.Address, transmitter string,
	at time.Time, sendErr error,
) TemplateContext {
	tplCtx := TemplateContext{
		Latitude:    pos.Lat,
		Longitude:   pos.Lng,
		Address:     addr,
		At:          at,
		Success:     sendErr == nil,
		Transmitter: transmitter,
	}
	if sendErr != nil {
		tplCtx.Error = sendErr.Error()
	}
	return tplCtx
}

// Render executes the summary and body templates.
func (p *Presenter) Render(tplCtx TemplateContext) (summary, body string, err error) {
	if summary, err = execute(p.SummaryTemplate, tplCtx); err != nil {
		return "", "", err
	}
	if body, err = execute(p.BodyTemplate, tplCtx); err != nil {
		return "", "", err
	}
	return summary, body, nil
}

func (p *Presenter) parse(name, text string) (*template.Template, error) {
	tpl, err := template.New(name).Funcs(p.templateFuncMap()).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
	}
	return tpl, nil
}

func execute(tpl *template.Template, data TemplateContext) (string, error) {
	if tpl == nil {
		return "", errors.New("failed to render: template is not set")
	}
	buf := bytes.NewBuffer(nil)
	if err := tpl.Execute(buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s template: %w", tpl.Name(), err)
	}
	return buf.String(), nil
}
