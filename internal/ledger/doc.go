// Package ledger holds the row layout shared by ledger backends. A consultation
// occupies one row, columns A through Q:
//
//	A visitor_id      B timestamp        C customer_name   D customer_phone
//	E travelers       F product_name     G departure_date  H return_date
//	I duration        J price_amount     K price_currency  L hotel
//	M meals           N inclusions       O exclusions      P automation_status
//	Q is_bot_enabled
//
// Row 1 is the header. Column A is the stable identity and is never rewritten.
package ledger
