// examctl is an operator tool for inspecting the exam database: recent
// attempts and question-bank pool sizes.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/quizforge/quizforge-engine/internal/config"
	"github.com/quizforge/quizforge-engine/internal/db"
	"github.com/quizforge/quizforge-engine/internal/question"
)

func main() {
	var (
		module = flag.String("module", "", "module filter")
		org    = flag.String("org", "", "organization filter")
		limit  = flag.Int("limit", 20, "max attempts to list")
	)
	flag.Parse()

	cfg := config.FromEnv()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	defer dbh.Close()

	if *module != "" {
		qs := question.NewSQLStore(dbh)
		n, err := qs.CountMatching(ctx, question.Filter{Module: *module, OrgID: *org})
		if err != nil {
			log.Fatalf("count questions: %v", err)
		}
		color.Cyan("Question pool for module=%q org=%q: %d", *module, *org, n)
	}

	if err := listAttempts(ctx, dbh, *module, *org, *limit); err != nil {
		log.Fatalf("list attempts: %v", err)
	}
}

func listAttempts(ctx context.Context, dbh *sql.DB, module, org string, limit int) error {
	q := `SELECT id, exam_id, user_id, org_id, module, status, score, max_score, percentage, passed, finished_at
		FROM attempts`
	args := []any{}
	if module != "" {
		q += ` WHERE module=$1 AND (org_id=$2 OR $2='')`
		args = append(args, module, org)
	}
	q += fmt.Sprintf(` ORDER BY started_at DESC LIMIT %d`, limit)

	rows, err := dbh.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	color.Yellow("\nRecent attempts")
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Attempt", "Exam", "User", "Org", "Module", "Status", "Score", "Pct", "Result", "Finished"})

	for rows.Next() {
		var id, examID, userID, orgID, mod, status string
		var score, maxScore, percentage, passed int
		var finishedAt int64
		if err := rows.Scan(&id, &examID, &userID, &orgID, &mod, &status,
			&score, &maxScore, &percentage, &passed, &finishedAt); err != nil {
			log.Printf("scan attempt row: %v", err)
			continue
		}
		result := color.RedString("FAIL")
		if passed != 0 {
			result = color.GreenString("PASS")
		}
		if status != "submitted" {
			result = "-"
		}
		finished := "-"
		if finishedAt > 0 {
			finished = time.Unix(finishedAt, 0).Format("2006-01-02 15:04")
		}
		table.Append([]string{
			short(id), short(examID), userID, orgID, mod, status,
			fmt.Sprintf("%d/%d", score, maxScore),
			fmt.Sprintf("%d%%", percentage),
			result, finished,
		})
	}
	table.Render()
	return rows.Err()
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
