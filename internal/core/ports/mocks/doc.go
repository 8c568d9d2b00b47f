// Package mocks provides test doubles for ports interfaces.
//
// These mocks are simple, thread-safe, in-memory implementations suitable for
// unit testing. Each mock provides:
//
//   - Default behavior that follows the contract of the PostgreSQL store
//   - Callback functions (xxxFn) for customizing behavior per test
//   - Helper methods for setting and inspecting state directly
//   - Clear/Reset methods for test isolation
//
// # Usage Example
//
//	func TestMyStage(t *testing.T) {
//		catalog := mocks.NewCatalogStore()
//		catalog.AddMessages(msgs...)
//
//		stage := NewStage(catalog)
//		// ... test stage behavior
//	}
//
// # Available Mocks
//
//   - CatalogStore: implements ports.MessageStore, ports.ProductStore and ports.CategoryStore
//   - RunStore: implements ports.RunStore
//   - Enricher: implements ports.Enricher
//   - ObjectStore and MediaFetcher: implement the media ports
//   - SettingsStore: implements ports.SettingsStore
package mocks
