package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AlecAivazis/survey/v2"

	"github.com/dyike/ArenaGo/config"
	"github.com/dyike/ArenaGo/consts"
	"github.com/dyike/ArenaGo/internal/dataflows"
	"github.com/dyike/ArenaGo/internal/service"
)

// promptStartRequest fills a start request interactively, using the
// current values as defaults.
func promptStartRequest(req *service.StartRequest, cfg config.Config) error {
	if req.CheapModelID == "" {
		req.CheapModelID = cfg.DefaultCheapModel
	}
	if req.PremiumModelID == "" {
		req.PremiumModelID = cfg.DefaultPremiumModel
	}
	weight := consts.DefaultWeightTechnical
	if req.WeightTechnical != nil {
		weight = *req.WeightTechnical
	}

	answers := struct {
		Symbol    string
		Capital   string
		Days      string
		Cheap     string
		Premium   string
		Weight    string
		UseReddit bool
	}{}

	questions := []*survey.Question{
		{
			Name: "symbol",
			Prompt: &survey.Input{
				Message: "Ticker symbol (e.g., AAPL, MSFT):",
				Default: req.Symbol,
			},
			Validate: func(val interface{}) error {
				return dataflows.ValidateSymbol(dataflows.NormalizeSymbol(val.(string)))
			},
			Transform: survey.TransformString(strings.ToUpper),
		},
		{
			Name:     "capital",
			Prompt:   &survey.Input{Message: "Starting capital per bot ($):", Default: strconv.FormatFloat(req.StartCapital, 'f', -1, 64)},
			Validate: minFloat(consts.MinStartCapital),
		},
		{
			Name:     "days",
			Prompt:   &survey.Input{Message: "Trading days:", Default: strconv.Itoa(req.DurationDays)},
			Validate: intRange(1, 365),
		},
		{
			Name:   "cheap",
			Prompt: &survey.Input{Message: "Cheap bot model:", Default: req.CheapModelID},
		},
		{
			Name:   "premium",
			Prompt: &survey.Input{Message: "Premium bot model:", Default: req.PremiumModelID},
		},
		{
			Name:     "weight",
			Prompt:   &survey.Input{Message: "Algo technical weight (0-100):", Default: strconv.Itoa(weight)},
			Validate: intRange(0, 100),
		},
		{
			Name:   "usereddit",
			Prompt: &survey.Confirm{Message: "Include Reddit and Stocktwits signals?", Default: req.UseReddit},
		},
	}

	if err := survey.Ask(questions, &answers); err != nil {
		return err
	}

	req.Symbol = strings.TrimSpace(answers.Symbol)
	req.StartCapital, _ = strconv.ParseFloat(strings.TrimSpace(answers.Capital), 64)
	req.DurationDays, _ = strconv.Atoi(strings.TrimSpace(answers.Days))
	req.CheapModelID = strings.TrimSpace(answers.Cheap)
	req.PremiumModelID = strings.TrimSpace(answers.Premium)
	w, _ := strconv.Atoi(strings.TrimSpace(answers.Weight))
	req.WeightTechnical = &w
	req.UseReddit = answers.UseReddit
	return nil
}

func minFloat(min float64) survey.Validator {
	return func(val interface{}) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(val.(string)), 64)
		if err != nil {
			return fmt.Errorf("enter a number")
		}
		if f < min {
			return fmt.Errorf("must be at least %.0f", min)
		}
		return nil
	}
}

func intRange(lo, hi int) survey.Validator {
	return func(val interface{}) error {
		n, err := strconv.Atoi(strings.TrimSpace(val.(string)))
		if err != nil {
			return fmt.Errorf("enter a whole number")
		}
		if n < lo || n > hi {
			return fmt.Errorf("must be between %d and %d", lo, hi)
		}
		return nil
	}
}
