// Package document hosts a spreadsheet workbook in process.
//
// A Book holds sheets of sparse cells, named tables whose first row is a
// header, and range bindings. Changes made through the book, and changes
// made by other writers of its Backend, are reported to table and binding
// handlers as ordered notifications. Book.Sync waits until everything queued
// so far has been delivered.
package document
