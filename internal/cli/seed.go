package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"casebeam/internal/auth"
	"casebeam/internal/models"
	"casebeam/internal/store"
	"casebeam/internal/store/sqlstore"
)

var sampleNotes = []string{
	"Client call: reviewed timeline of the incident",
	"Drafted interrogatories for opposing counsel",
	"Reviewed deposition transcript, flagged inconsistencies",
	"Researched proximate cause in neighbouring jurisdictions",
	"Filed motion to extend discovery deadline",
	"Met with expert witness on damages model",
	"Summarized medical records received today",
	"Prepared exhibit list for pretrial conference",
	"Settlement discussion, client open to mediation",
	"Checked limitation period against filing date",
	"Reviewed insurer's coverage position letter",
	"Outlined argument on foreseeability",
	"Court clerk confirmed hearing date",
	"Updated case budget and sent to partner",
	"Read new appellate decision on duty of care",
}

var (
	seedEmail    string
	seedPassword string
	seedDays     int
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create a demo account with sample data",
	Long: `Create (or reuse) a demo account and fill it with a project, key dates,
a category and a year of backdated notes, for trying the app locally.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		st, err := sqlstore.New(cfg.Database.Driver, cfg.Database.Conn)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer st.Close()

		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		userID, inserted, err := seedDemo(st, seedEmail, seedPassword, seedDays, rng)
		if err != nil {
			return err
		}
		fmt.Printf("Seeded user %d (%s) with %d notes over the past %d days\n", userID, seedEmail, inserted, seedDays)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedEmail, "email", "demo@casebeam.local", "demo account email")
	seedCmd.Flags().StringVar(&seedPassword, "password", "casebeam-demo", "demo account password")
	seedCmd.Flags().IntVar(&seedDays, "days", 365, "days of notes to generate")
	rootCmd.AddCommand(seedCmd)
}

// seedDemo returns the demo user's id and the number of notes inserted.
func seedDemo(st store.Store, email, password string, days int, rng *rand.Rand) (int, int, error) {
	userID, err := demoUser(st, email, password)
	if err != nil {
		return 0, 0, err
	}

	if err := ensureCategories(st, userID, []models.Category{
		{Name: "General"},
		{Name: "Negligence", Color: "#2563eb"},
	}); err != nil {
		return 0, 0, fmt.Errorf("category: %w", err)
	}

	p := models.Project{
		UserID:       userID,
		Name:         "Palsgraf v. Long Island Railroad",
		Description:  "Personal injury claim, platform explosion",
		ClientName:   "Helen Palsgraf",
		CaseNumber:   "NY-1927-0340",
		Court:        "New York Court of Appeals",
		Jurisdiction: "New York",
		Status:       models.StatusOpen,
	}
	if err := st.CreateProject(&p); err != nil {
		return 0, 0, fmt.Errorf("project: %w", err)
	}

	now := time.Now()
	for _, d := range []models.ProjectDate{
		{Title: "Discovery closes", Date: now.AddDate(0, 1, 0)},
		{Title: "Pretrial conference", Date: now.AddDate(0, 2, 14)},
		{Title: "Trial", Date: now.AddDate(0, 4, 0), Description: "Three days reserved"},
	} {
		d.ProjectID = p.ID
		if err := st.CreateProjectDate(userID, &d); err != nil {
			return 0, 0, fmt.Errorf("project date: %w", err)
		}
	}

	inserted := 0
	start := now.AddDate(0, 0, -days)
	for day := start; day.Before(now); day = day.AddDate(0, 0, 1) {
		// 0-3 notes per day between 8 AM and 10 PM
		for range rng.Intn(4) {
			t := time.Date(day.Year(), day.Month(), day.Day(), rng.Intn(14)+8, rng.Intn(60), 0, 0, day.Location())
			if t.After(now) {
				continue
			}
			n := models.Note{
				UserID:    userID,
				Title:     sampleNotes[rng.Intn(len(sampleNotes))],
				Content:   "<p>" + sampleNotes[rng.Intn(len(sampleNotes))] + "</p>",
				CreatedAt: t,
			}
			if rng.Intn(2) == 0 {
				n.ProjectID = &p.ID
			}
			if err := st.CreateNote(&n); err != nil {
				return 0, 0, fmt.Errorf("note: %w", err)
			}
			inserted++
		}
	}
	return userID, inserted, nil
}

func demoUser(st store.Store, email, password string) (int, error) {
	u, err := st.GetUserByEmail(email)
	if err == nil {
		return u.ID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return 0, err
	}
	return st.CreateUser(email, "Demo User", hash)
}

func ensureCategories(st store.Store, userID int, want []models.Category) error {
	have, err := st.GetCategories(userID)
	if err != nil {
		return err
	}
	exists := make(map[string]bool, len(have))
	for _, c := range have {
		exists[strings.ToLower(c.Name)] = true
	}
	for _, c := range want {
		if exists[strings.ToLower(c.Name)] {
			continue
		}
		c.UserID = userID
		if err := st.CreateCategory(&c); err != nil {
			return err
		}
	}
	return nil
}
