// Package scraper implements the crawl engine for the vehicle marketplace:
// listing extraction from rendered documents, pagination control, and the
// orchestrating engine that exposes streaming and batch views of one crawl.
package scraper
