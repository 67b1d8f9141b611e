// Package device provides the Device Registry for Blue Scout Core.
//
// The registry is the de-duplicated catalogue of every radio device seen by
// the discovery loop, keyed by address across both transport families.
//
// # Architecture
//
//	discovery (classic) ──┐
//	                      ├──▶ Registry.MergeSighting ──▶ signature correlator (new records only)
//	discovery (advert) ───┘            │
//	                                   ├──▶ in-memory map (RWMutex, deep copies out)
//	                                   └──▶ Repository (SQLite, write-through)
//
// # Merge Rules
//
//   - A first sighting creates the record, stamps FirstSeen = LastSeen and
//     stores the tags computed by the correlator.
//   - Later sightings merge: services and manufacturer ids are unioned, a
//     missing name or device class is filled in, LastSeen always advances,
//     and advertisement sightings refresh SignalStrength.
//   - Tags are never recomputed on re-sighting. AnnotatePlatform may add
//     tags; nothing removes them.
//
// # Usage
//
//	reg := device.NewRegistry(signature.NewCorrelator(db), device.NewSQLiteRepository(sqlDB))
//	reg.SetLogger(logger)
//	isNew, err := reg.MergeSighting(ctx, device.Sighting{Address: "AA:BB:CC:11:22:33", Transport: device.TransportClassic})
//	for _, rec := range reg.Snapshot() {
//	    fmt.Println(rec.Address, rec.Signatures)
//	}
package device
