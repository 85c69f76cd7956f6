// Package cache owns the on-disk page cache: it translates request URLs into
// <pages root>/<url path>/ directories (Resolver), and writes, reads, expires
// and purges the HTML variants stored in them (Store). Every write goes through
// a temp file + rename so concurrent readers never see a partial file, and all
// variants of an entry share the plain file's modification time, which is the
// entry's freshness timestamp. The article-fragment tier lives under a
// separate root and is managed through the same Store.
package cache
