package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/opensource-finance/fakeguard/internal/domain"
)

// LabelField marks each generated account as genuine or fake. The server
// ignores it; bench uses it as ground truth.
const LabelField = "label"

const (
	LabelGenuine = "genuine"
	LabelFake    = "fake"
)

// Fake account archetypes.
const (
	kindBurst = iota // brand-new numbered account posting at machine rate
	kindFarm         // numbered account on a throwaway mailbox
	kindSpam         // empty profile pasting the same post around the clock
	kindCount
)

var disposableMailboxes = []string{"mailinator.com", "yopmail.com", "guerrillamail.com", "maildrop.cc"}

// csvColumns is the column order for CSV output.
var csvColumns = []string{
	domain.FieldUsername, domain.FieldEmail, domain.FieldEmailVerified, domain.FieldPhoneVerified,
	domain.FieldCreatedAt, domain.FieldPosts, domain.FieldFollowers, domain.FieldFollowing,
	domain.FieldBio, domain.FieldFullName, domain.FieldWebsite, domain.FieldLocation,
	domain.FieldProfilePicture, domain.FieldPostingHours, domain.FieldRecentLocations,
	domain.FieldRecentPosts, LabelField,
}

// Generator produces labelled synthetic accounts.
type Generator struct {
	faker *gofakeit.Faker
	now   time.Time
}

// NewGenerator returns a generator; the same seed yields the same accounts
// for a fixed now.
func NewGenerator(seed int64, now time.Time) *Generator {
	return &Generator{faker: gofakeit.New(seed), now: now}
}

// Generate returns genuine accounts followed by fakes, shuffled together.
func (g *Generator) Generate(genuine, fake int) []domain.AccountRecord {
	records := make([]domain.AccountRecord, 0, genuine+fake)
	for i := 0; i < genuine; i++ {
		records = append(records, g.Genuine(i))
	}
	for i := 0; i < fake; i++ {
		records = append(records, g.Fake(i))
	}

	g.faker.ShuffleAnySlice(records)
	return records
}

// Genuine builds a complete, long-lived, verified profile.
func (g *Generator) Genuine(i int) domain.AccountRecord {
	first := g.faker.FirstName()
	last := g.faker.LastName()
	ageDays := g.faker.Number(400, 3000)

	hours := make([]string, 0, 4)
	for _, h := range []int{8, 12, 19, 22} {
		if g.faker.Bool() || len(hours) == 0 {
			hours = append(hours, strconv.Itoa(h))
		}
	}

	posts := make([]string, 3)
	for j := range posts {
		posts[j] = g.faker.Sentence(8)
	}

	return domain.AccountRecord{
		domain.FieldUsername:        fmt.Sprintf("%s_%s", slug(first), slug(last)),
		domain.FieldEmail:           fmt.Sprintf("%s.%s@%s", slug(first), slug(last), g.faker.DomainName()),
		domain.FieldEmailVerified:   true,
		domain.FieldPhoneVerified:   true,
		domain.FieldCreatedAt:       g.now.AddDate(0, 0, -ageDays).Format("2006-01-02"),
		domain.FieldPosts:           g.faker.Number(10, ageDays*3),
		domain.FieldFollowers:       g.faker.Number(40, 5000),
		domain.FieldFollowing:       g.faker.Number(20, 800),
		domain.FieldBio:             g.faker.Sentence(10),
		domain.FieldFullName:        first + " " + last,
		domain.FieldWebsite:         g.faker.URL(),
		domain.FieldLocation:        g.faker.City(),
		domain.FieldProfilePicture:  fmt.Sprintf("https://cdn.example.com/avatars/%s.jpg", g.faker.UUID()),
		domain.FieldPostingHours:    strings.Join(hours, ","),
		domain.FieldRecentLocations: g.faker.City(),
		domain.FieldRecentPosts:     strings.Join(posts, "|||"),
		LabelField:                  LabelGenuine,
	}
}

// Fake builds one of the bot archetypes, cycling by index.
func (g *Generator) Fake(i int) domain.AccountRecord {
	rec := domain.AccountRecord{LabelField: LabelFake}

	switch i % kindCount {
	case kindBurst:
		ageDays := g.faker.Number(1, 10)
		rec[domain.FieldUsername] = "user" + g.faker.DigitN(8)
		rec[domain.FieldEmail] = g.faker.Email()
		rec[domain.FieldCreatedAt] = g.now.AddDate(0, 0, -ageDays).Format(time.RFC3339)
		rec[domain.FieldPosts] = g.faker.Number(60*ageDays, 400*ageDays)
		rec[domain.FieldFollowers] = g.faker.Number(0, 5)
		rec[domain.FieldFollowing] = g.faker.Number(500, 5000)

	case kindFarm:
		rec[domain.FieldUsername] = strings.ToLower(g.faker.LetterN(6)) + g.faker.DigitN(5)
		rec[domain.FieldEmail] = fmt.Sprintf("%s@%s", strings.ToLower(g.faker.LetterN(8)), g.faker.RandomString(disposableMailboxes))
		rec[domain.FieldEmailVerified] = false
		rec[domain.FieldCreatedAt] = g.now.AddDate(0, 0, -g.faker.Number(30, 200)).Format("2006-01-02")
		rec[domain.FieldPosts] = g.faker.Number(0, 20)
		rec[domain.FieldProfilePicture] = "https://cdn.example.com/avatars/default-farm.jpg"

	case kindSpam:
		hours := make([]string, 24)
		for h := range hours {
			hours[h] = strconv.Itoa(h)
		}
		post := g.faker.Sentence(6)
		rec[domain.FieldUsername] = "bot" + g.faker.DigitN(6)
		rec[domain.FieldCreatedAt] = g.now.AddDate(0, 0, -g.faker.Number(15, 90)).Format("2006-01-02")
		rec[domain.FieldPosts] = g.faker.Number(100, 900)
		rec[domain.FieldPostingHours] = strings.Join(hours, ",")
		rec[domain.FieldRecentLocations] = strings.Join([]string{g.faker.City(), g.faker.City(), g.faker.City(), g.faker.City(), g.faker.City()}, ",")
		rec[domain.FieldRecentPosts] = strings.Join([]string{post, post, post, post}, "|||")
	}

	return rec
}

func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// WriteJSON writes records as an indented JSON array.
func WriteJSON(w io.Writer, records []domain.AccountRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// WriteCSV writes records with a header row in csvColumns order.
func WriteCSV(w io.Writer, records []domain.AccountRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvColumns); err != nil {
		return err
	}

	row := make([]string, len(csvColumns))
	for _, rec := range records {
		for i, col := range csvColumns {
			row[i] = rec.String(col)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// Labels maps each username to whether it is a known fake.
func Labels(records []domain.AccountRecord) map[string]bool {
	labels := make(map[string]bool, len(records))
	for _, rec := range records {
		labels[rec.Username()] = rec.String(LabelField) == LabelFake
	}
	return labels
}
