// Package kwscout provides a Go client for the kwscout keyword discovery
// service.
//
// A discovery run is asynchronous: StartDiscovery returns immediately with a
// run ID, and the pipeline progresses through stages server-side. Poll with
// Progress, or use WaitForCompletion to block until a terminal stage:
//
//	client := kwscout.New("http://localhost:8080", kwscout.WithAPIKey(key))
//	start, _ := client.StartDiscovery(ctx, kwscout.DiscoveryRequest{
//	    Pitch:  "AI assistant that turns sales calls into CRM notes",
//	    Target: 100,
//	})
//	progress, _ := client.WaitForCompletion(ctx, start.RunID, 2*time.Second)
//	keywords, _ := client.Keywords(ctx, start.RunID)
//
// Interrupted runs resume from their last checkpoint:
//
//	progress, err := client.Resume(ctx, runID)
package kwscout
