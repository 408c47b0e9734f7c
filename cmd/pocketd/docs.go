package main

// General API documentation for swaggo. The served document is generated from
// the route table in internal/httpapi; these annotations describe the same API
// for `swag init`.
//
// @title           pocketd API
// @version         1.0
// @description     Model management and chat inference over a local engine script.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
