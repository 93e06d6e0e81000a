// Package notebook keeps the research notes gathered on a legislator
// dashboard.
//
// The assistant tags findings worth keeping as intel packets; the chat
// session extracts them and hands each one to [Notebook.Capture]. Notes
// are never sent anywhere and live only as long as the dashboard visit.
package notebook
