// Command plot-session renders the frame statistics of a recorded session.
//
// Usage:
//
//	go run ./cmd/tools/plot-session [flags]
//
// Flags:
//
//	-db       Path to the sqlite database (default: avatartrack.db)
//	-session  Session ID (default: most recent)
//	-out      Output image path (default: session.png)
//	-list     List sessions and exit
package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/banshee-data/avatar.track/internal/db"
	"github.com/banshee-data/avatar.track/internal/report"
)

func main() {
	var dbPath, sessionID, out string
	var list bool

	flag.StringVar(&dbPath, "db", "avatartrack.db", "path to sqlite db")
	flag.StringVar(&sessionID, "session", "", "session ID (default: most recent)")
	flag.StringVar(&out, "out", "session.png", "output image path; the extension picks the format")
	flag.BoolVar(&list, "list", false, "list recorded sessions and exit")
	flag.Parse()

	store, err := db.NewDB(dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	if list {
		sessions, err := store.Sessions()
		if err != nil {
			log.Fatalf("list sessions: %v", err)
		}
		for _, s := range sessions {
			ended := "running"
			if s.EndedAt != nil {
				ended = s.EndedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("%s  %-10s  %s  %s\n", s.ID, s.Source, s.StartedAt.Format("2006-01-02 15:04:05"), ended)
		}
		return
	}

	opt := report.Options{Format: strings.TrimPrefix(filepath.Ext(out), ".")}
	if err := report.SessionPlot(store, sessionID, out, opt); err != nil {
		log.Fatalf("plot session: %v", err)
	}
	fmt.Printf("✓ Wrote %s\n", out)
}
