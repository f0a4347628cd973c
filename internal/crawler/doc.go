// Package crawler holds the domain types, interfaces and errors shared by the
// fetchers, classifier, traversal engine, queues, stores and API.
package crawler
