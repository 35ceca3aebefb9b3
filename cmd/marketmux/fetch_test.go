package main

import "testing"

func TestFetchLimitFlagsAreIndependent(t *testing.T) {
	kline := fetchKlineCmd.Flags().Lookup("limit")
	if kline == nil {
		t.Fatal("kline command must have a limit flag")
	}
	if kline.DefValue != "120" {
		t.Errorf("kline limit default = %s, want 120", kline.DefValue)
	}

	news := fetchNewsCmd.Flags().Lookup("limit")
	if news == nil {
		t.Fatal("news command must have a limit flag")
	}
	if news.DefValue != "20" {
		t.Errorf("news limit default = %s, want 20", news.DefValue)
	}

	// Both flags were registered at init time; the kline default must
	// survive the later news registration.
	if fetchKlineLimit != 120 {
		t.Errorf("kline limit variable = %d, want 120", fetchKlineLimit)
	}
	if fetchNewsLimit != 20 {
		t.Errorf("news limit variable = %d, want 20", fetchNewsLimit)
	}
}
