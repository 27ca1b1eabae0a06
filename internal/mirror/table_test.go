package mirror

import "testing"

func TestTableEnsureCreatesOnce(t *testing.T) {
	tbl := NewTable()

	topic, created := tbl.Ensure("com.victronenergy.battery.ttyO1", "/Dc/0/Voltage", "N/abc123/battery/257/Dc/0/Voltage", 12.8)
	if !created {
		t.Fatal("first Ensure: created = false, want true")
	}
	if topic != "N/abc123/battery/257/Dc/0/Voltage" {
		t.Errorf("topic = %q", topic)
	}

	topic2, created2 := tbl.Ensure("com.victronenergy.battery.ttyO1", "/Dc/0/Voltage", "N/abc123/battery/257/Dc/0/Voltage", 13.0)
	if created2 {
		t.Error("second Ensure: created = true, want false")
	}
	if topic2 != topic {
		t.Errorf("second Ensure topic = %q, want %q", topic2, topic)
	}

	e, ok := tbl.Lookup("com.victronenergy.battery.ttyO1", "/Dc/0/Voltage")
	if !ok {
		t.Fatal("Lookup after Ensure: not found")
	}
	if e.Value != 12.8 {
		t.Errorf("Value = %v, want 12.8 (Ensure must not overwrite on repeat calls)", e.Value)
	}
}

func TestTableUpdate(t *testing.T) {
	tbl := NewTable()
	tbl.Ensure("com.victronenergy.battery.ttyO1", "/Dc/0/Voltage", "N/abc123/battery/257/Dc/0/Voltage", 12.8)
	tbl.Update("com.victronenergy.battery.ttyO1", "/Dc/0/Voltage", 13.1)

	e, ok := tbl.Lookup("com.victronenergy.battery.ttyO1", "/Dc/0/Voltage")
	if !ok || e.Value != 13.1 {
		t.Errorf("after Update: %+v, %v", e, ok)
	}
}

func TestTableLookupTopic(t *testing.T) {
	tbl := NewTable()
	topic, _ := tbl.Ensure("com.victronenergy.battery.ttyO1", "/Dc/0/Voltage", "N/abc123/battery/257/Dc/0/Voltage", 12.8)

	e, ok := tbl.LookupTopic(topic)
	if !ok || e.Path != "/Dc/0/Voltage" {
		t.Errorf("LookupTopic = %+v, %v", e, ok)
	}
}

func TestTableRemoveService(t *testing.T) {
	tbl := NewTable()
	tbl.Ensure("com.victronenergy.battery.ttyO1", "/Dc/0/Voltage", "N/abc123/battery/257/Dc/0/Voltage", 12.8)
	tbl.Ensure("com.victronenergy.battery.ttyO1", "/Dc/0/Current", "N/abc123/battery/257/Dc/0/Current", 1.0)
	tbl.Ensure("com.victronenergy.solarcharger.ttyO2", "/Yield", "N/abc123/solarcharger/258/Yield", 3.2)

	topics := tbl.RemoveService("com.victronenergy.battery.ttyO1")
	if len(topics) != 2 {
		t.Fatalf("RemoveService returned %d topics, want 2", len(topics))
	}
	if tbl.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after removing one service", tbl.Len())
	}
	if _, ok := tbl.Lookup("com.victronenergy.battery.ttyO1", "/Dc/0/Voltage"); ok {
		t.Error("entry still present after RemoveService")
	}
}

func TestTableAllTopics(t *testing.T) {
	tbl := NewTable()
	tbl.Ensure("com.victronenergy.battery.ttyO1", "/Dc/0/Voltage", "N/abc123/battery/257/Dc/0/Voltage", 12.8)
	tbl.Ensure("com.victronenergy.battery.ttyO1", "/Dc/0/Current", "N/abc123/battery/257/Dc/0/Current", 1.0)

	all := tbl.AllTopics()
	if len(all) != 2 {
		t.Fatalf("AllTopics returned %d entries, want 2", len(all))
	}
}
