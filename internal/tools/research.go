package tools

import (
	"context"
	"strings"

	"github.com/google/generative-ai-go/genai"
)

// Fetcher is the network side of the research tools.
type Fetcher interface {
	FetchText(ctx context.Context, url string) string
	FetchPDFText(ctx context.Context, url string) string
	FetchCSV(ctx context.Context, url string) ([][]string, error)
}

// Sources are the fixed locations the research tools read from.
type Sources struct {
	Website         string
	CV              string
	ScholarProfile  string
	ArxivPDFBase    string
	LeaderboardBase string
}

func DefaultSources() Sources {
	return Sources{
		Website:         "https://grgkovac.github.io",
		CV:              "https://grgkovac.github.io/cv.pdf",
		ScholarProfile:  "https://scholar.google.com/citations?user=ZLA7iioAAAAJ&hl=en",
		ArxivPDFBase:    "https://arxiv.org/pdf/",
		LeaderboardBase: "https://flowers-team-sticktoyourroleleaderboard.hf.space",
	}
}

func (s Sources) leaderboardCSV() string {
	return strings.TrimRight(s.LeaderboardBase, "/") + "/static/leaderboard.csv"
}

// Paper is a publication the agent can read in full.
type Paper struct {
	Tool    string
	Title   string
	ArxivID string
}

var Papers = []Paper{
	{"get_GRIMGEP_paper_pdf", "GRIMGEP: Learning Progress for Robust Goal Sampling in Visual Deep Reinforcement Learning", "2008.04388"},
	{"get_SocialAI_paper_pdf", "The SocialAI School: Insights from Developmental Psychology Towards Artificial Socio-Cultural Agents", "2307.07871"},
	{"get_LLMs_as_superpositions_of_cultural_perspectives_paper_pdf", "Large Language Models as Superpositions of Cultural Perspectives", "2307.07870"},
	{"get_stick_to_your_role_paper_pdf", "Stick to your Role! Stability of Personal Values Expressed in Large Language Models", "2402.14846"},
	{"get_recursive_training_loops_paper_pdf", "Recursive Training Loops in LLMs: How training data properties modulate distribution shift in generated data?", "2504.03814"},
	{"get_telephone_game_paper_pdf", "When LLMs Play the Telephone Game: Cultural Attractors as Conceptual Tools to Evaluate LLMs in Multi-turn Settings", "2407.04503"},
}

// Leaderboard page selectors.
const (
	ContentMainPage   = "main_page"
	ContentMethodPage = "motivation_and_methods_page"
)

// NewResearchTools returns the full capability catalogue.
func NewResearchTools(f Fetcher, src Sources) []Capability {
	caps := []Capability{
		&funcTool{
			name:        "get_personal_website",
			description: "Fetches the content of Grgur Kovac's personal website.",
			fn: func(ctx context.Context, _ map[string]any) (string, error) {
				return f.FetchText(ctx, src.Website), nil
			},
		},
		&funcTool{
			name:        "get_cv_paper_pdf",
			description: "Fetches the text of Grgur Kovac's CV (PDF).",
			fn: func(ctx context.Context, _ map[string]any) (string, error) {
				return f.FetchPDFText(ctx, src.CV), nil
			},
		},
		&funcTool{
			name:        "fetch_website_content",
			description: "Fetches the content of a website and cleans it. Returns the cleaned text content of the website.",
			params: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"url": {Type: genai.TypeString, Description: "The URL of the website to fetch."},
				},
				Required: []string{"url"},
			},
			fn: func(ctx context.Context, args map[string]any) (string, error) {
				url := stringArg(args, "url", "")
				if url == "" {
					return "Error: url is required", nil
				}
				return f.FetchText(ctx, url), nil
			},
		},
		&funcTool{
			name:        "get_google_scholar_profile",
			description: "Extracts publication data from Grgur Kovac's Google Scholar profile.",
			fn: func(ctx context.Context, _ map[string]any) (string, error) {
				return f.FetchText(ctx, src.ScholarProfile), nil
			},
		},
	}

	for _, p := range Papers {
		url := src.ArxivPDFBase + p.ArxivID
		caps = append(caps, &funcTool{
			name:        p.Tool,
			description: "Fetches the pdf of the following paper\n" + p.Title,
			fn: func(ctx context.Context, _ map[string]any) (string, error) {
				return f.FetchPDFText(ctx, url), nil
			},
		})
	}

	caps = append(caps, leaderboardContentTool(f, src), leaderboardDataTool(f, src))
	return caps
}

func leaderboardContentTool(f Fetcher, src Sources) Capability {
	return &funcTool{
		name: "get_stick_to_your_role_leaderboard_website_content",
		description: "Fetches specific information from the 'Stick to your Role!' leaderboard space on Hugging Face. " +
			"'main_page' is the homepage showing current rankings and some basic information on the project. " +
			"'motivation_and_methods_page' details the motivation and methodology, in particular how the methodology differs from the paper.",
		params: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"content": {
					Type:        genai.TypeString,
					Description: "The type of content to retrieve.",
					Enum:        []string{ContentMainPage, ContentMethodPage},
				},
			},
		},
		fn: func(ctx context.Context, args map[string]any) (string, error) {
			base := strings.TrimRight(src.LeaderboardBase, "/")
			switch stringArg(args, "content", ContentMainPage) {
			case ContentMainPage:
				return f.FetchText(ctx, base), nil
			case ContentMethodPage:
				return f.FetchText(ctx, base+"/about"), nil
			default:
				return "Error: Invalid content type requested.", nil
			}
		},
	}
}

func leaderboardDataTool(f Fetcher, src Sources) Capability {
	return &funcTool{
		name: "get_stick_to_your_role_leaderboard_data",
		description: "Retrieves and sorts the 'Stick to your Role!' leaderboard data as a Markdown table. " +
			"For Stress, SRMR, and RMSEA, lower is better (sorted ascending).",
		params: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"sort_by": {
					Type:        genai.TypeString,
					Description: "Column to sort by.",
					Enum:        LeaderboardColumns,
				},
				"columns_to_include": {
					Type:        genai.TypeString,
					Description: "Comma-separated columns (e.g., 'Model, Stress, CFI') or 'all'.",
				},
				"top_n": {
					Type:        genai.TypeInteger,
					Description: "Number of rows to return.",
				},
			},
		},
		fn: func(ctx context.Context, args map[string]any) (string, error) {
			records, err := f.FetchCSV(ctx, src.leaderboardCSV())
			if err != nil {
				return "Error processing leaderboard: " + err.Error(), nil
			}
			table, err := FormatLeaderboard(records, LeaderboardQuery{
				SortBy:  stringArg(args, "sort_by", DefaultSortColumn),
				Columns: stringArg(args, "columns_to_include", "all"),
				TopN:    intArg(args, "top_n", DefaultTopN),
			})
			if err != nil {
				return "Error processing leaderboard: " + err.Error(), nil
			}
			return table, nil
		},
	}
}
