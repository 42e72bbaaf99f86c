// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"go.astrophena.name/feedsync/internal/backend"
	"go.astrophena.name/feedsync/internal/cli"
	"go.astrophena.name/feedsync/internal/controller"
	"go.astrophena.name/feedsync/internal/feed"
	"go.astrophena.name/feedsync/internal/mutate"
	"go.astrophena.name/feedsync/internal/scroll"
)

type stateOutput struct {
	Feed       string             `json:"feed"`
	Status     controller.Status  `json:"status"`
	Page       int                `json:"page"`
	HasMore    bool               `json:"has_more"`
	Error      string             `json:"error,omitempty"`
	Items      []feed.Item        `json:"items"`
	ScrollTo   *float64           `json:"scroll_to,omitempty"`
	Checkpoint *scroll.Checkpoint `json:"checkpoint,omitempty"`
}

func (a *app) snapshot(c *controller.Controller) stateOutput {
	st := c.State()
	out := stateOutput{
		Feed:    c.Source().Key,
		Status:  st.Status,
		Page:    st.Page,
		HasMore: st.HasMore,
		Items:   st.Items,
	}
	if st.Err != nil {
		out.Error = st.Err.Error()
	}
	if out.Items == nil {
		out.Items = []feed.Item{}
	}
	return out
}

func (a *app) encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printState(ctx context.Context, out stateOutput) error {
	w := cli.GetEnv(ctx).Stdout
	if a.json {
		return a.encode(w, out)
	}

	more := "end of feed"
	if out.HasMore {
		more = "more available"
	}
	fmt.Fprintf(w, "%s: %s, page %d, %d items, %s\n", out.Feed, out.Status, out.Page, len(out.Items), more)
	if out.Error != "" {
		fmt.Fprintf(w, "error: %s\n", out.Error)
	}
	if len(out.Items) > 0 {
		tw := table(w)
		fmt.Fprintln(tw, "ID\tTYPE\tLIKES\tSAVES\tTITLE")
		for _, it := range out.Items {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				truncate(it.ID, 24),
				it.ContentType,
				count(it.LikeCount, it.IsLiked),
				count(it.SavedCount, it.IsSaved),
				truncate(title(it), 50),
			)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	if out.ScrollTo != nil {
		fmt.Fprintf(w, "scroll to %s\n", formatOffset(*out.ScrollTo))
	}
	if out.Checkpoint != nil {
		fmt.Fprintf(w, "checkpoint: page %d, offset %s\n", out.Checkpoint.Page, formatOffset(out.Checkpoint.Offset))
	}
	return nil
}

func (a *app) printCheckpoint(ctx context.Context, cp scroll.Checkpoint) error {
	w := cli.GetEnv(ctx).Stdout
	if a.json {
		return a.encode(w, cp)
	}
	fmt.Fprintf(w, "%s: checkpoint saved at page %d, offset %s\n", cp.FeedKey, cp.Page, formatOffset(cp.Offset))
	return nil
}

func (a *app) printMutation(ctx context.Context, res mutate.Result) error {
	w := cli.GetEnv(ctx).Stdout
	if a.json {
		type mutationJSON struct {
			ID     string       `json:"id"`
			Kind   mutate.Kind  `json:"kind"`
			ItemID string       `json:"item_id"`
			State  mutate.State `json:"state"`
			Item   feed.Item    `json:"item"`
		}
		return a.encode(w, mutationJSON{
			ID:     res.ID,
			Kind:   res.Kind,
			ItemID: res.ItemID,
			State:  res.State,
			Item:   res.Item,
		})
	}
	fmt.Fprintf(w, "%s %s: %s (%s likes, %s saves)\n",
		res.Kind, res.ItemID, res.State,
		count(res.Item.LikeCount, res.Item.IsLiked),
		count(res.Item.SavedCount, res.Item.IsSaved),
	)
	return nil
}

func (a *app) printCollections(ctx context.Context, cols []backend.Collection) error {
	w := cli.GetEnv(ctx).Stdout
	if a.json {
		if cols == nil {
			cols = []backend.Collection{}
		}
		return a.encode(w, struct {
			Collections []backend.Collection `json:"collections"`
		}{cols})
	}
	if len(cols) == 0 {
		fmt.Fprintln(w, "no collections")
		return nil
	}
	tw := table(w)
	fmt.Fprintln(tw, "ID\tNAME")
	for _, col := range cols {
		fmt.Fprintf(tw, "%s\t%s\n", truncate(col.ID, 24), col.Name)
	}
	return tw.Flush()
}

func (a *app) printFeeds(w io.Writer) error {
	if a.json {
		type feedJSON struct {
			Key          string           `json:"key"`
			Endpoint     string           `json:"endpoint,omitempty"`
			Syndication  string           `json:"syndication,omitempty"`
			Kind         feed.ContentType `json:"kind,omitempty"`
			Auth         bool             `json:"auth,omitempty"`
			Reorder      bool             `json:"reorder,omitempty"`
			ClearOnFocus bool             `json:"clear_on_focus,omitempty"`
			PageSize     int              `json:"page_size"`
		}
		feeds := []feedJSON{}
		for _, src := range a.cfg.Feeds {
			feeds = append(feeds, feedJSON{
				Key:          src.Key,
				Endpoint:     src.Endpoint,
				Syndication:  src.Syndication,
				Kind:         src.Kind,
				Auth:         src.Auth,
				Reorder:      src.Reorder,
				ClearOnFocus: src.ClearOnFocus,
				PageSize:     src.Size(a.cfg.PageSize),
			})
		}
		return a.encode(w, feeds)
	}

	tw := table(w)
	fmt.Fprintln(tw, "FEED\tSIZE\tFLAGS\tSOURCE")
	for _, src := range a.cfg.Feeds {
		var flags []string
		if src.Auth {
			flags = append(flags, "auth")
		}
		if src.Reorder {
			flags = append(flags, "reorder")
		}
		if src.ClearOnFocus {
			flags = append(flags, "clear-on-focus")
		}
		source := src.Endpoint
		if src.Syndication != "" {
			source = src.Syndication
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n",
			src.Key,
			src.Size(a.cfg.PageSize),
			cmp.Or(strings.Join(flags, ","), "-"),
			source,
		)
	}
	return tw.Flush()
}

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// count formats a counter, marking it when the current user contributed.
func count(n int, mine bool) string {
	s := strconv.Itoa(n)
	if mine {
		s += "*"
	}
	return s
}

// title picks something readable from the backend fields of an item.
func title(it feed.Item) string {
	for _, key := range []string{"title", "caption", "name", "description"} {
		if s, ok := it.Raw[key].(string); ok && s != "" {
			return strings.Join(strings.Fields(s), " ")
		}
	}
	return ""
}

func formatOffset(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) > n {
		return string([]rune(s)[:n-3]) + "..."
	}
	return s
}
