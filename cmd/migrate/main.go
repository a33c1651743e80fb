// Command migrate bootstraps a development database: drops and
// recreates the admission schema and seeds a small fixture set.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"os"
	"time"

	"ms-admission/internal/models"
	"ms-admission/internal/signature"
	"ms-admission/internal/utils"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

func main() {
	var (
		reset = flag.Bool("reset", false, "drop all tables before creating them")
		seed  = flag.Bool("seed", false, "insert fixture data")
	)
	flag.Parse()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN not set")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	ctx := context.Background()

	if *reset {
		dropTables(ctx, db)
	}
	createTables(ctx, db)

	if *seed {
		seedData(ctx, db)
	}

	log.Println("migration complete")
}

func allModels() []interface{} {
	return []interface{}{
		(*models.User)(nil),
		(*models.Event)(nil),
		(*models.TicketType)(nil),
		(*models.Gate)(nil),
		(*models.Ticket)(nil),
		(*models.EventCounter)(nil),
		(*models.ScanLog)(nil),
	}
}

func dropTables(ctx context.Context, db *bun.DB) {
	for _, m := range allModels() {
		_, _ = db.NewDropTable().Model(m).IfExists().Cascade().Exec(ctx)
	}
}

func createTables(ctx context.Context, db *bun.DB) {
	for _, m := range allModels() {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			log.Fatalf("failed to create table for %T: %v", m, err)
		}
	}
}

func seedData(ctx context.Context, db *bun.DB) {
	secret := []byte(os.Getenv("QR_SECRET_KEY"))
	now := time.Now()

	users := []models.User{
		{UserID: "user001", Email: "alice@example.com", FullName: "Alice Wonderland"},
		{UserID: "user002", Email: "bob@example.com", FullName: "Bob Builder"},
	}
	_, _ = db.NewInsert().Model(&users).Exec(ctx)

	event := models.Event{
		EventID:       "event001",
		Name:          "Summer Fest 2026",
		StartDatetime: now.Add(-time.Hour),
		EndDatetime:   now.AddDate(0, 0, 3),
		Capacity:      500,
		AllowReentry:  true,
	}
	_, _ = db.NewInsert().Model(&event).Exec(ctx)

	ticketType := models.TicketType{
		TicketTypeID: "type001",
		EventID:      "event001",
		Name:         "General Admission",
		UsageLimit:   3,
	}
	_, _ = db.NewInsert().Model(&ticketType).Exec(ctx)

	gates := []models.Gate{
		{GateID: "gate001", EventID: "event001", Name: "Main Gate", Status: models.GateStatusActive},
		{GateID: "gate002", EventID: "event001", Name: "Backstage", Status: models.GateStatusInactive},
	}
	_, _ = db.NewInsert().Model(&gates).Exec(ctx)

	counter := models.EventCounter{EventID: "event001", CurrentIn: 0, UpdatedAt: now}
	_, _ = db.NewInsert().Model(&counter).Exec(ctx)

	for i, userID := range []string{"user001", "user002"} {
		nonce, err := utils.NewNonce()
		if err != nil {
			log.Fatalf("failed to generate QR nonce: %v", err)
		}
		ticket := models.Ticket{
			TicketID:     "ticket00" + string(rune('1'+i)),
			EventID:      "event001",
			TicketTypeID: "type001",
			UserID:       userID,
			Status:       models.TicketStatusPaid,
			QRNonce:      nonce,
			IssuedAt:     now,
		}
		_, _ = db.NewInsert().Model(&ticket).Exec(ctx)
		log.Printf("seeded %s signature=%s", ticket.TicketID,
			signature.Sign(ticket.TicketID, ticket.EventID, ticket.QRNonce, secret))
	}
}
