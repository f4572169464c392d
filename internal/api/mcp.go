package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rewired-gh/scorepulse/internal/models"
	"github.com/rewired-gh/scorepulse/internal/predictor"
)

type PredictMatchArgs struct {
	Home    string  `json:"home" jsonschema:"Home team name (required)"`
	Away    string  `json:"away" jsonschema:"Away team name (required)"`
	Tier    string  `json:"tier,omitempty" jsonschema:"free or premium (default free)"`
	OddHome float64 `json:"odd_home,omitempty" jsonschema:"Decimal odds for a home win"`
	OddDraw float64 `json:"odd_draw,omitempty" jsonschema:"Decimal odds for a draw"`
	OddAway float64 `json:"odd_away,omitempty" jsonschema:"Decimal odds for an away win"`
}

type TeamReportArgs struct {
	Team string `json:"team" jsonschema:"Team name (required)"`
}

type HeadToHeadArgs struct {
	Home string `json:"home" jsonschema:"Home team name (required)"`
	Away string `json:"away" jsonschema:"Away team name (required)"`
}

type UpcomingArgs struct {
	Count int `json:"count,omitempty" jsonschema:"Number of fixtures (default 10)"`
}

// MCPServer registers the prediction tools.
func (h *Handler) MCPServer() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "scorepulse", Version: h.version}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "predict_match",
		Description: "Predict outcome probabilities, total goals and scoreline for a fixture",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args PredictMatchArgs) (*mcp.CallToolResult, any, error) {
		tier, ok := models.ParseTier(args.Tier)
		if !ok {
			return toolError(fmt.Errorf("unknown tier %q", args.Tier)), nil, nil
		}
		if args.Home == "" || args.Away == "" {
			return toolError(errors.New("home and away are required")), nil, nil
		}
		pr := predictor.Request{Home: args.Home, Away: args.Away, Tier: tier}
		if args.OddHome > 0 || args.OddDraw > 0 || args.OddAway > 0 {
			pr.Odds = &predictor.Odds{Home: args.OddHome, Draw: args.OddDraw, Away: args.OddAway}
		}
		pred := h.predictor.Predict(ctx, pr)
		if pred.Failed() {
			return toolError(errors.New(pred.Error)), nil, nil
		}
		return toolJSON(pred), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "team_report",
		Description: "Rating, points per game, goal difference trend and expected goals for a team",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args TeamReportArgs) (*mcp.CallToolResult, any, error) {
		report, err := h.predictor.TeamReport(ctx, args.Team)
		if err != nil {
			return toolError(err), nil, nil
		}
		return toolJSON(report), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "head_to_head",
		Description: "Most recent meetings between two teams, newest first",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args HeadToHeadArgs) (*mcp.CallToolResult, any, error) {
		meetings, err := h.predictor.HeadToHead(ctx, args.Home, args.Away)
		if err != nil {
			return toolError(err), nil, nil
		}
		return toolJSON(meetings), nil, nil
	})

	mcp.AddTool(server, &mcp.Tool{
		Name:        "upcoming_fixtures",
		Description: "Scheduled fixtures from today on, soonest first",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args UpcomingArgs) (*mcp.CallToolResult, any, error) {
		count := args.Count
		if count <= 0 {
			count = defaultUpcoming
		}
		fixtures, err := h.predictor.Upcoming(min(count, maxUpcoming))
		if err != nil {
			return toolError(err), nil, nil
		}
		return toolJSON(fixtures), nil, nil
	})

	return server
}

// MCPHandler serves the MCP server over streamable HTTP.
func (h *Handler) MCPHandler() http.Handler {
	server := h.MCPServer()
	return mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return server
	}, &mcp.StreamableHTTPOptions{JSONResponse: true})
}

func toolJSON(v any) *mcp.CallToolResult {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError(err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(b)},
		},
	}
}

func toolError(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("error: %v", err)},
		},
	}
}
