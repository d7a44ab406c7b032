// Package booking holds the booking-domain types shared across the module
// and the HTTP client for the external booking, identity and balance
// services. The services own the authoritative records; everything local is
// an advisory view.
package booking
