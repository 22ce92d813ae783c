package config

import "testing"

func TestAssetThresholdTableParse(t *testing.T) {
	c := AssetsConfig{ConfirmationTable: "BTC:2;eth:12", DefaultConfirmations: 6}
	if err := c.parse(); err != nil {
		t.Fatalf("parse: %v", err)
	}

	got := c.Thresholds()
	if got["BTC"] != 2 || got["ETH"] != 12 {
		t.Fatalf("thresholds = %+v", got)
	}
	if _, ok := got["DOGE"]; ok {
		t.Fatal("unlisted asset should not have an entry")
	}
}

func TestAssetThresholdTableParseMalformed(t *testing.T) {
	c := AssetsConfig{ConfirmationTable: "BTC=2"}
	if err := c.parse(); err == nil {
		t.Fatal("expected error for malformed entry")
	}
}

func TestProviderRequiredFieldsParse(t *testing.T) {
	c := WebhookConfig{
		Providers:          "acme; globex",
		RequiredFieldTable: "acme:account_number,routing_number;globex:iban",
	}
	if err := c.parse(); err != nil {
		t.Fatalf("parse: %v", err)
	}

	names := c.ProviderNames()
	if len(names) != 2 || names[0] != "acme" || names[1] != "globex" {
		t.Fatalf("names = %v", names)
	}

	acme := c.RequiredFields("acme")
	if len(acme) != 2 || acme[0] != "account_number" {
		t.Fatalf("acme fields = %v", acme)
	}
	if fields := c.RequiredFields("unknown"); len(fields) != 0 {
		t.Fatalf("unknown provider fields = %v", fields)
	}
}
