package client_test

import (
	"context"
	"fmt"
	"log"

	"github.com/simplyinspect/permwatch/pkg/client"
)

// Example demonstrates basic usage of the PermWatch client
func Example() {
	// Create a new client
	c := client.NewClient(client.Config{
		BaseURL: "http://localhost:8080",
	})

	ctx := context.Background()

	// Capture a baseline for a site and activate it
	b, err := c.Baselines().Capture(ctx, client.CaptureBaselineRequest{
		SiteID:   "sites/finance",
		Name:     "Quarterly baseline",
		Activate: true,
	})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Captured baseline %d with %d entries\n", b.ID, b.EntryCount)

	// Run detection against the active baseline
	result, err := c.Detection().RunSite(ctx, "sites/finance")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Detection status: %s\n", result.Status)
}

// ExampleChangeService_List demonstrates listing unreviewed changes
func ExampleChangeService_List() {
	c := client.NewClient(client.Config{
		BaseURL: "http://localhost:8080",
	})

	reviewed := false
	changes, page, err := c.Changes().List(context.Background(), &client.ChangeListOptions{
		ListOptions: client.ListOptions{
			Page:     1,
			PageSize: 20,
		},
		SiteID:   "sites/finance",
		Types:    []string{"added", "inheritance_broken"},
		Reviewed: &reviewed,
	})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Found %d of %d changes\n", len(changes), page.TotalItems)
}

// ExampleNotificationService_UpsertRecipient demonstrates subscribing
// a recipient to daily digests
func ExampleNotificationService_UpsertRecipient() {
	c := client.NewClient(client.Config{
		BaseURL: "http://localhost:8080",
	})

	rule, err := c.Notifications().UpsertRecipient(context.Background(), client.UpsertRecipientRequest{
		Email:     "security@example.com",
		SiteID:    "", // all sites
		Frequency: "daily",
	})
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Recipient rule %d saved\n", rule.ID)
}
