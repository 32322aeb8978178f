// Package triage is the core of the notifier: it decides, for each inbound
// chat message, whether to drop it, surface it immediately, or score it with
// the classifier and alert only above the configured urgency threshold. It
// defines the domain models, the ordered rule engine, the bounded dedup
// window, alert rendering, and the Service that sequences one message
// through all of them.
package triage
