// Package browser exposes browser sessions as tools.
//
// Every tool addresses a session by the name it was started with. Sessions
// are owned by a session.Registry; the tools only translate XML arguments
// into registry and page calls and render the outcome as text plus
// metadata.
//
// # Session Lifecycle
//
//  1. Create: start_browser_session launches a browser and opens a page
//  2. Use: navigation, interaction, capture and interception tools operate on it
//  3. Close: close_browser_session releases page, context and browser
//
// Starting a session under a name that is already live replaces it.
//
// # Traffic
//
// Console and network activity of every page in a session is captured
// from the moment the session starts. browser_console_logs and
// browser_network_logs query it; browser_clear_logs empties it.
//
// browser_mock_response answers matching requests with a canned response.
// browser_intercept_request blocks, delays, logs or rewrites them. When
// several rules match one request the most recently added runs first.
//
// # Downloads
//
// browser_download clicks an element and waits for the download it starts.
// The outcome is recorded on the session whether or not a file arrived;
// browser_cleanup_downloads removes records and, optionally, the files.
//
// # Argument Format
//
// Map arguments are written as entries and lists as items:
//
//	<headers>
//	  <entry name="content-type">application/json</entry>
//	</headers>
//	<values><item>red</item><item>blue</item></values>
package browser
